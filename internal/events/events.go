package events

// Event types emitted by the posting engine.
const (
	TypeInvoicePosted      = "ledger.invoice_posted"
	TypePaymentPosted      = "ledger.payment_posted"
	TypeCreditApplied      = "ledger.credit_applied"
	TypeDepositRefunded    = "ledger.deposit_refunded"
	TypeCapexPosted        = "ledger.capex_posted"
	TypeDepreciationPosted = "ledger.depreciation_posted"
)
