package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/chart"
)

// InvoiceStatus tracks the payment lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusOpen    InvoiceStatus = "open"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// IsTerminal reports whether the status can no longer change. Paid never
// regresses; later adjustments surface as tenant credit instead.
func (s InvoiceStatus) IsTerminal() bool { return s == InvoiceStatusPaid }

// LineItem is one billable line on an invoice. Items flagged
// IsBalanceForwarded carry a prior-period receivable and are not
// re-recognized as income when the invoice is posted.
type LineItem struct {
	ID                 snowflake.ID   `json:"id"`
	Category           chart.Category `json:"category"`
	Amount             int64          `json:"amount"`
	Type               string         `json:"type"`
	Description        string         `json:"description,omitempty"`
	IsBalanceForwarded bool           `json:"is_balance_forwarded"`
}

// LineItems stores the invoice lines as a JSON column.
type LineItems []LineItem

// Value implements driver.Valuer.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LineItems) Scan(value any) error {
	if value == nil {
		*l = LineItems{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported line items type %T", value)
	}
	if len(raw) == 0 {
		*l = LineItems{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

// Total sums every line item amount.
func (l LineItems) Total() int64 {
	var total int64
	for _, item := range l {
		total += item.Amount
	}
	return total
}

// Invoice is a billing document. The cached payment fields (TotalPaid,
// EffectivePaid, OverpaidAmount, BalanceAmount, Status) are written only by
// the ledger, recomputed after every posting against the invoice.
type Invoice struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	OrgID          snowflake.ID  `gorm:"not null;index"`
	TenantID       snowflake.ID  `gorm:"not null;index"`
	PropertyID     snowflake.ID  `gorm:"not null;index"`
	DateIssued     time.Time     `gorm:"not null"`
	DueDate        time.Time     `gorm:"not null"`
	LineItems      LineItems     `gorm:"type:json;not null"`
	TotalAmount    int64         `gorm:"not null"`
	TotalPaid      int64         `gorm:"not null;default:0"`
	EffectivePaid  int64         `gorm:"not null;default:0"`
	OverpaidAmount int64         `gorm:"not null;default:0"`
	BalanceAmount  int64         `gorm:"not null;default:0"`
	Status         InvoiceStatus `gorm:"type:text;not null"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "property_invoices" }

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidProperty     = errors.New("invalid_property")
	ErrInvalidLineItems    = errors.New("invalid_line_items")
	ErrInvalidTotal        = errors.New("invalid_total")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
)
