package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/clock"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if req.OrgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if req.TenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}
	if req.PropertyID == 0 {
		return nil, invoicedomain.ErrInvalidProperty
	}
	if len(req.LineItems) == 0 {
		return nil, invoicedomain.ErrInvalidLineItems
	}
	for i := range req.LineItems {
		if req.LineItems[i].Amount <= 0 {
			return nil, invoicedomain.ErrInvalidLineItems
		}
		if req.LineItems[i].ID == 0 {
			req.LineItems[i].ID = s.genID.Generate()
		}
	}

	now := s.clock.Now().UTC()
	dateIssued := req.DateIssued
	if dateIssued.IsZero() {
		dateIssued = now
	}
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = dateIssued.AddDate(0, 0, 14)
	}

	total := req.LineItems.Total()
	if total <= 0 {
		return nil, invoicedomain.ErrInvalidTotal
	}

	inv := &invoicedomain.Invoice{
		ID:            s.genID.Generate(),
		OrgID:         req.OrgID,
		TenantID:      req.TenantID,
		PropertyID:    req.PropertyID,
		DateIssued:    dateIssued,
		DueDate:       dueDate,
		LineItems:     req.LineItems,
		TotalAmount:   total,
		BalanceAmount: total,
		Status:        invoicedomain.InvoiceStatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetByID(ctx context.Context, orgID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if id == 0 {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	var inv invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&inv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) ListByTenant(ctx context.Context, orgID, tenantID snowflake.ID) ([]invoicedomain.Invoice, error) {
	if orgID == 0 {
		return nil, invoicedomain.ErrInvalidOrganization
	}
	if tenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}

	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND tenant_id = ?", orgID, tenantID).
		Order("date_issued DESC, id DESC").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
