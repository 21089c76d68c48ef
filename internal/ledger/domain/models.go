package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/chart"
)

// TransactionType tags the business event a batch of entries came from.
type TransactionType string

const (
	TransactionTypeInvoiceIssue    TransactionType = "invoice_issue"
	TransactionTypePaymentReceived TransactionType = "payment_received"
	TransactionTypeCreditApplied   TransactionType = "credit_applied"
	TransactionTypeDepositRefund   TransactionType = "deposit_refund"
	TransactionTypeCapex           TransactionType = "capex"
	TransactionTypeDepreciation    TransactionType = "depreciation"
)

// LedgerEntry is one debit-or-credit movement against one account. Entries
// are only ever written as balanced batches and are never updated or
// deleted; corrections are posted as new offsetting entries.
type LedgerEntry struct {
	ID              snowflake.ID    `gorm:"primaryKey"`
	OrgID           snowflake.ID    `gorm:"not null;index"`
	EntryDate       time.Time       `gorm:"not null;index"`
	AccountCode     string          `gorm:"type:text;not null;index"`
	Account         string          `gorm:"type:text;not null"`
	Debit           int64           `gorm:"not null"`
	Credit          int64           `gorm:"not null"`
	Category        chart.Category  `gorm:"type:text;not null"`
	Description     string          `gorm:"type:text"`
	TransactionType TransactionType `gorm:"type:text;not null;index"`
	Reference       string          `gorm:"type:text;not null;index"`
	InvoiceID       *snowflake.ID   `gorm:"index"`
	LineItemID      *snowflake.ID
	PropertyID      *snowflake.ID `gorm:"index"`
	TenantID        *snowflake.ID `gorm:"index"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "property_ledger_entries" }

// CreditApplication is the outcome of applying accumulated tenant credit.
// Applied may be zero when no credit is available; that is a valid business
// state, not an error.
type CreditApplication struct {
	Applied   int64
	Remainder int64
	Entries   []LedgerEntry
}

// DepositRefund splits a held security deposit into a net cash refund and a
// deduction recognized as maintenance income.
type DepositRefund struct {
	Deposit   int64
	Deduction int64
	NetRefund int64
	Entries   []LedgerEntry
}
