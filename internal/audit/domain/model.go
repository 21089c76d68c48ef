package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog captures an immutable record of a posting action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	OrgID      snowflake.ID      `gorm:"not null;index"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Service records audit entries for ledger postings.
type Service interface {
	AuditLog(ctx context.Context, orgID snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
	AuditLogTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
}
