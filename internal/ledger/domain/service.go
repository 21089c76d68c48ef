package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ApplyCreditRequest applies accumulated tenant credit against a target
// account, Accounts Receivable unless overridden.
type ApplyCreditRequest struct {
	OrgID       snowflake.ID
	TenantID    snowflake.ID
	Amount      int64
	DateApplied time.Time
	ApplyToCode string
	InvoiceID   *snowflake.ID
	Description string
}

// RefundDepositRequest refunds a held security deposit, keeping a share of
// it as a deduction.
type RefundDepositRequest struct {
	OrgID          snowflake.ID
	TenantID       snowflake.ID
	PropertyID     snowflake.ID
	DepositAmount  int64
	DeductionRatio float64
	RefundDate     time.Time
}

// CapexRequest records a capital expenditure paid in cash.
type CapexRequest struct {
	OrgID       snowflake.ID
	PropertyID  snowflake.ID
	Amount      int64
	Date        time.Time
	Description string
}

// DepreciationRequest recognizes one month of depreciation for a property.
type DepreciationRequest struct {
	OrgID       snowflake.ID
	PropertyID  snowflake.ID
	Amount      int64
	Date        time.Time
	Description string
}

// Service is the double-entry posting engine. Every operation writes a
// balanced batch of ledger entries and keeps the related invoice payment
// cache consistent within the same transaction.
type Service interface {
	PostInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) ([]LedgerEntry, error)
	PostPayment(ctx context.Context, orgID, invoiceID snowflake.ID, amount int64, paidAt time.Time) ([]LedgerEntry, error)
	ApplyTenantCredit(ctx context.Context, req ApplyCreditRequest) (CreditApplication, error)
	RefundDeposit(ctx context.Context, req RefundDepositRequest) (DepositRefund, error)
	PostCapex(ctx context.Context, req CapexRequest) ([]LedgerEntry, error)
	PostDepreciation(ctx context.Context, req DepreciationRequest) ([]LedgerEntry, error)
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidProperty       = errors.New("invalid_property")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidDeductionRatio = errors.New("invalid_deduction_ratio")
	ErrInvalidAccount        = errors.New("invalid_account")
	ErrInvalidEntryBatch     = errors.New("invalid_entry_batch")
	ErrInvalidEntryAmount    = errors.New("invalid_entry_amount")
	ErrUnbalancedBatch       = errors.New("unbalanced_batch")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrInvoiceAlreadyPosted  = errors.New("invoice_already_posted")
)
