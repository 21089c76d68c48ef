package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/propledger/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

func (s *Service) AuditLog(ctx context.Context, orgID snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error {
	return s.write(ctx, s.db, orgID, action, targetType, targetID, metadata)
}

func (s *Service) AuditLogTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error {
	if tx == nil {
		return errors.New("missing_transaction")
	}
	return s.write(ctx, tx, orgID, action, targetType, targetID, metadata)
}

func (s *Service) write(ctx context.Context, db *gorm.DB, orgID snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error {
	if orgID == 0 {
		return errors.New("invalid_org_id")
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return errors.New("missing_action")
	}
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		return errors.New("missing_target_type")
	}

	meta := datatypes.JSONMap{}
	for key, value := range metadata {
		if strings.TrimSpace(key) == "" {
			continue
		}
		meta[key] = value
	}

	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
	return db.WithContext(ctx).Create(entry).Error
}
