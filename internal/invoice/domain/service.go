package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreateInvoiceRequest carries the fields the billing workflow supplies.
type CreateInvoiceRequest struct {
	OrgID      snowflake.ID
	TenantID   snowflake.ID
	PropertyID snowflake.ID
	DateIssued time.Time
	DueDate    time.Time
	LineItems  LineItems
}

// Service is the invoice store the ledger posts against. Only the ledger
// writes the cached payment fields.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetByID(ctx context.Context, orgID, id snowflake.ID) (*Invoice, error)
	ListByTenant(ctx context.Context, orgID, tenantID snowflake.ID) ([]Invoice, error)
}
