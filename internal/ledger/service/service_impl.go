package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/propledger/internal/audit/domain"
	"github.com/smallbiznis/propledger/internal/chart"
	"github.com/smallbiznis/propledger/internal/clock"
	"github.com/smallbiznis/propledger/internal/events"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
	"github.com/smallbiznis/propledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config carries the posting-policy knobs.
type Config struct {
	// MinPartialAllocation is the smallest remainder worth splitting onto a
	// line item, in minor currency units.
	MinPartialAllocation int64
}

func DefaultConfig() Config {
	return Config{MinPartialAllocation: 5000}
}

func (c Config) withDefaults() Config {
	if c.MinPartialAllocation <= 0 {
		c.MinPartialAllocation = DefaultConfig().MinPartialAllocation
	}
	return c
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Chart    *chart.Chart
	Clock    clock.Clock
	Outbox   *events.Outbox           `optional:"true"`
	AuditSvc auditdomain.Service      `optional:"true"`
	Metrics  *metrics.PostingMetrics  `optional:"true"`
	Cfg      Config                   `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	chart    *chart.Chart
	clock    clock.Clock
	outbox   *events.Outbox
	auditSvc auditdomain.Service
	metrics  *metrics.PostingMetrics
	cfg      Config
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("ledger.service"),
		genID:    p.GenID,
		chart:    p.Chart,
		clock:    p.Clock,
		outbox:   p.Outbox,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
		cfg:      p.Cfg.withDefaults(),
	}
}

func (s *Service) PostInvoice(ctx context.Context, orgID, invoiceID snowflake.ID) ([]ledgerdomain.LedgerEntry, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	started := s.clock.Now()

	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}

		posted, err := s.invoicePosted(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if posted {
			return ledgerdomain.ErrInvoiceAlreadyPosted
		}

		reference := s.reference("INV")
		entries = s.buildInvoiceEntries(inv, reference)
		if len(entries) == 0 {
			// Every line item is balance-forwarded; the receivable already
			// exists from the original posting.
			return s.syncInvoicePaymentState(ctx, tx, inv)
		}

		if err := s.insertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.syncInvoicePaymentState(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.publishTx(ctx, tx, events.Event{
			OrgID: orgID,
			Type:  events.TypeInvoicePosted,
			Payload: map[string]any{
				"invoice_id": invoiceID.String(),
				"reference":  reference,
				"total":      inv.TotalAmount,
			},
			DedupeKey: "invoice_posted:" + invoiceID.String(),
		}); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, orgID, "ledger.invoice_posted", "invoice", invoiceID, map[string]any{
			"reference": reference,
			"entries":   len(entries),
			"total":     inv.TotalAmount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePosting(string(ledgerdomain.TransactionTypeInvoiceIssue), s.clock.Now().Sub(started))
	return entries, nil
}

func (s *Service) buildInvoiceEntries(inv *invoicedomain.Invoice, reference string) []ledgerdomain.LedgerEntry {
	var entries []ledgerdomain.LedgerEntry
	var receivable int64
	for _, item := range inv.LineItems {
		if item.IsBalanceForwarded {
			continue
		}
		account, ok := s.chart.ByCategory(item.Category)
		if !ok {
			account, _ = s.chart.ByCategory(chart.CategoryMisc)
		}
		itemID := item.ID
		entries = append(entries, ledgerdomain.LedgerEntry{
			ID:              s.genID.Generate(),
			OrgID:           inv.OrgID,
			EntryDate:       inv.DateIssued,
			AccountCode:     account.Code,
			Account:         account.Name,
			Credit:          item.Amount,
			Category:        item.Category,
			Description:     item.Description,
			TransactionType: ledgerdomain.TransactionTypeInvoiceIssue,
			Reference:       reference,
			InvoiceID:       &inv.ID,
			LineItemID:      &itemID,
			PropertyID:      &inv.PropertyID,
			TenantID:        &inv.TenantID,
		})
		receivable += item.Amount
	}
	if receivable == 0 {
		return nil
	}

	ar, _ := s.chart.ByCode(chart.CodeAccountsReceivable)
	entries = append(entries, ledgerdomain.LedgerEntry{
		ID:              s.genID.Generate(),
		OrgID:           inv.OrgID,
		EntryDate:       inv.DateIssued,
		AccountCode:     ar.Code,
		Account:         ar.Name,
		Debit:           receivable,
		Description:     fmt.Sprintf("Invoice %s issued", inv.ID.String()),
		TransactionType: ledgerdomain.TransactionTypeInvoiceIssue,
		Reference:       reference,
		InvoiceID:       &inv.ID,
		PropertyID:      &inv.PropertyID,
		TenantID:        &inv.TenantID,
	})
	return entries
}

func (s *Service) PostPayment(ctx context.Context, orgID, invoiceID snowflake.ID, amount int64, paidAt time.Time) ([]ledgerdomain.LedgerEntry, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if paidAt.IsZero() {
		paidAt = s.clock.Now().UTC()
	}
	started := s.clock.Now()

	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.loadInvoice(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}

		covered, err := s.invoiceCovered(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		due := inv.TotalAmount - covered
		if due < 0 {
			due = 0
		}
		applied := amount
		if applied > due {
			applied = due
		}
		overpay := amount - applied

		remaining, err := s.lineItemRemainders(ctx, tx, inv)
		if err != nil {
			return err
		}
		allocations, leftover := allocatePayment(inv.LineItems, remaining, applied, s.cfg.MinPartialAllocation)

		reference := s.reference("PAY")
		entries = s.buildPaymentEntries(inv, reference, paidAt, amount, allocations, leftover, overpay)

		if err := s.insertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.syncInvoicePaymentState(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.publishTx(ctx, tx, events.Event{
			OrgID: orgID,
			Type:  events.TypePaymentPosted,
			Payload: map[string]any{
				"invoice_id": invoiceID.String(),
				"reference":  reference,
				"amount":     amount,
				"overpaid":   overpay,
			},
			DedupeKey: "payment_posted:" + reference,
		}); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, orgID, "ledger.payment_posted", "invoice", invoiceID, map[string]any{
			"reference": reference,
			"amount":    amount,
			"applied":   applied,
			"overpaid":  overpay,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePosting(string(ledgerdomain.TransactionTypePaymentReceived), s.clock.Now().Sub(started))
	return entries, nil
}

func (s *Service) buildPaymentEntries(
	inv *invoicedomain.Invoice,
	reference string,
	paidAt time.Time,
	amount int64,
	allocations []allocation,
	leftover int64,
	overpay int64,
) []ledgerdomain.LedgerEntry {
	cash, _ := s.chart.ByCode(chart.CodeCash)
	ar, _ := s.chart.ByCode(chart.CodeAccountsReceivable)

	entries := []ledgerdomain.LedgerEntry{{
		ID:              s.genID.Generate(),
		OrgID:           inv.OrgID,
		EntryDate:       paidAt,
		AccountCode:     cash.Code,
		Account:         cash.Name,
		Debit:           amount,
		Description:     fmt.Sprintf("Payment received for invoice %s", inv.ID.String()),
		TransactionType: ledgerdomain.TransactionTypePaymentReceived,
		Reference:       reference,
		InvoiceID:       &inv.ID,
		PropertyID:      &inv.PropertyID,
		TenantID:        &inv.TenantID,
	}}

	for _, alloc := range allocations {
		itemID := alloc.LineItemID
		entries = append(entries, ledgerdomain.LedgerEntry{
			ID:              s.genID.Generate(),
			OrgID:           inv.OrgID,
			EntryDate:       paidAt,
			AccountCode:     ar.Code,
			Account:         ar.Name,
			Credit:          alloc.Amount,
			Category:        alloc.Category,
			Description:     fmt.Sprintf("Payment applied to %s", alloc.Category),
			TransactionType: ledgerdomain.TransactionTypePaymentReceived,
			Reference:       reference,
			InvoiceID:       &inv.ID,
			LineItemID:      &itemID,
			PropertyID:      &inv.PropertyID,
			TenantID:        &inv.TenantID,
		})
	}

	// Shortfall below the partial-allocation threshold settles the
	// receivable without being attributed to any single line item.
	if leftover > 0 {
		entries = append(entries, ledgerdomain.LedgerEntry{
			ID:              s.genID.Generate(),
			OrgID:           inv.OrgID,
			EntryDate:       paidAt,
			AccountCode:     ar.Code,
			Account:         ar.Name,
			Credit:          leftover,
			Description:     "Payment applied, unallocated remainder",
			TransactionType: ledgerdomain.TransactionTypePaymentReceived,
			Reference:       reference,
			InvoiceID:       &inv.ID,
			PropertyID:      &inv.PropertyID,
			TenantID:        &inv.TenantID,
		})
	}

	if overpay > 0 {
		credit, _ := s.chart.ByCode(chart.CodeTenantCredit)
		entries = append(entries, ledgerdomain.LedgerEntry{
			ID:              s.genID.Generate(),
			OrgID:           inv.OrgID,
			EntryDate:       paidAt,
			AccountCode:     credit.Code,
			Account:         credit.Name,
			Credit:          overpay,
			Description:     fmt.Sprintf("Overpayment on invoice %s", inv.ID.String()),
			TransactionType: ledgerdomain.TransactionTypePaymentReceived,
			Reference:       reference,
			InvoiceID:       &inv.ID,
			PropertyID:      &inv.PropertyID,
			TenantID:        &inv.TenantID,
		})
	}
	return entries
}

func (s *Service) ApplyTenantCredit(ctx context.Context, req ledgerdomain.ApplyCreditRequest) (ledgerdomain.CreditApplication, error) {
	if req.OrgID == 0 {
		return ledgerdomain.CreditApplication{}, ledgerdomain.ErrInvalidOrganization
	}
	if req.TenantID == 0 {
		return ledgerdomain.CreditApplication{}, ledgerdomain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return ledgerdomain.CreditApplication{}, ledgerdomain.ErrInvalidAmount
	}

	targetCode := strings.TrimSpace(req.ApplyToCode)
	if targetCode == "" {
		targetCode = chart.CodeAccountsReceivable
	}
	target, ok := s.chart.ByCode(targetCode)
	if !ok {
		return ledgerdomain.CreditApplication{}, ledgerdomain.ErrInvalidAccount
	}
	dateApplied := req.DateApplied
	if dateApplied.IsZero() {
		dateApplied = s.clock.Now().UTC()
	}
	started := s.clock.Now()

	var result ledgerdomain.CreditApplication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		available, err := s.tenantCreditBalance(ctx, tx, req.OrgID, req.TenantID)
		if err != nil {
			return err
		}
		applied := req.Amount
		if applied > available {
			applied = available
		}
		if applied <= 0 {
			// No credit on file. A valid business state, not an error.
			result = ledgerdomain.CreditApplication{Remainder: req.Amount}
			return nil
		}

		credit, _ := s.chart.ByCode(chart.CodeTenantCredit)
		description := strings.TrimSpace(req.Description)
		if description == "" {
			description = "Tenant credit applied"
		}

		reference := s.reference("CRD")
		tenantID := req.TenantID
		entries := []ledgerdomain.LedgerEntry{
			{
				ID:              s.genID.Generate(),
				OrgID:           req.OrgID,
				EntryDate:       dateApplied,
				AccountCode:     credit.Code,
				Account:         credit.Name,
				Debit:           applied,
				Description:     description,
				TransactionType: ledgerdomain.TransactionTypeCreditApplied,
				Reference:       reference,
				InvoiceID:       req.InvoiceID,
				TenantID:        &tenantID,
			},
			{
				ID:              s.genID.Generate(),
				OrgID:           req.OrgID,
				EntryDate:       dateApplied,
				AccountCode:     target.Code,
				Account:         target.Name,
				Credit:          applied,
				Description:     description,
				TransactionType: ledgerdomain.TransactionTypeCreditApplied,
				Reference:       reference,
				InvoiceID:       req.InvoiceID,
				TenantID:        &tenantID,
			},
		}
		if err := s.insertEntries(ctx, tx, entries); err != nil {
			return err
		}

		if req.InvoiceID != nil && *req.InvoiceID != 0 {
			inv, err := s.loadInvoice(ctx, tx, req.OrgID, *req.InvoiceID)
			if err != nil {
				return err
			}
			if err := s.syncInvoicePaymentState(ctx, tx, inv); err != nil {
				return err
			}
		}

		if err := s.publishTx(ctx, tx, events.Event{
			OrgID: req.OrgID,
			Type:  events.TypeCreditApplied,
			Payload: map[string]any{
				"tenant_id": req.TenantID.String(),
				"reference": reference,
				"applied":   applied,
			},
			DedupeKey: "credit_applied:" + reference,
		}); err != nil {
			return err
		}
		if err := s.auditTx(ctx, tx, req.OrgID, "ledger.credit_applied", "tenant", req.TenantID, map[string]any{
			"reference": reference,
			"applied":   applied,
			"requested": req.Amount,
		}); err != nil {
			return err
		}

		result = ledgerdomain.CreditApplication{
			Applied:   applied,
			Remainder: req.Amount - applied,
			Entries:   entries,
		}
		return nil
	})
	if err != nil {
		return ledgerdomain.CreditApplication{}, err
	}

	if result.Applied > 0 {
		s.metrics.ObservePosting(string(ledgerdomain.TransactionTypeCreditApplied), s.clock.Now().Sub(started))
	}
	return result, nil
}

func (s *Service) RefundDeposit(ctx context.Context, req ledgerdomain.RefundDepositRequest) (ledgerdomain.DepositRefund, error) {
	if req.OrgID == 0 {
		return ledgerdomain.DepositRefund{}, ledgerdomain.ErrInvalidOrganization
	}
	if req.TenantID == 0 {
		return ledgerdomain.DepositRefund{}, ledgerdomain.ErrInvalidTenant
	}
	if req.PropertyID == 0 {
		return ledgerdomain.DepositRefund{}, ledgerdomain.ErrInvalidProperty
	}
	if req.DepositAmount <= 0 {
		return ledgerdomain.DepositRefund{}, ledgerdomain.ErrInvalidAmount
	}
	if req.DeductionRatio < 0 || req.DeductionRatio > 1 {
		return ledgerdomain.DepositRefund{}, ledgerdomain.ErrInvalidDeductionRatio
	}
	refundDate := req.RefundDate
	if refundDate.IsZero() {
		refundDate = s.clock.Now().UTC()
	}
	started := s.clock.Now()

	deduction := int64(math.Round(req.DeductionRatio * float64(req.DepositAmount)))
	netRefund := req.DepositAmount - deduction

	depositAccount, _ := s.chart.ByCode(chart.CodeSecurityDepositHeld)
	cash, _ := s.chart.ByCode(chart.CodeCash)
	maintenanceIncome, _ := s.chart.ByCode(chart.CodeMaintenanceIncome)

	reference := s.reference("RFD")
	tenantID := req.TenantID
	propertyID := req.PropertyID
	entries := []ledgerdomain.LedgerEntry{{
		ID:              s.genID.Generate(),
		OrgID:           req.OrgID,
		EntryDate:       refundDate,
		AccountCode:     depositAccount.Code,
		Account:         depositAccount.Name,
		Debit:           req.DepositAmount,
		Category:        chart.CategoryDeposit,
		Description:     "Security deposit released",
		TransactionType: ledgerdomain.TransactionTypeDepositRefund,
		Reference:       reference,
		PropertyID:      &propertyID,
		TenantID:        &tenantID,
	}}
	if netRefund > 0 {
		entries = append(entries, ledgerdomain.LedgerEntry{
			ID:              s.genID.Generate(),
			OrgID:           req.OrgID,
			EntryDate:       refundDate,
			AccountCode:     cash.Code,
			Account:         cash.Name,
			Credit:          netRefund,
			Category:        chart.CategoryDeposit,
			Description:     "Deposit refunded to tenant",
			TransactionType: ledgerdomain.TransactionTypeDepositRefund,
			Reference:       reference,
			PropertyID:      &propertyID,
			TenantID:        &tenantID,
		})
	}
	if deduction > 0 {
		entries = append(entries, ledgerdomain.LedgerEntry{
			ID:              s.genID.Generate(),
			OrgID:           req.OrgID,
			EntryDate:       refundDate,
			AccountCode:     maintenanceIncome.Code,
			Account:         maintenanceIncome.Name,
			Credit:          deduction,
			Category:        chart.CategoryMaintenance,
			Description:     "Deposit deduction recognized",
			TransactionType: ledgerdomain.TransactionTypeDepositRefund,
			Reference:       reference,
			PropertyID:      &propertyID,
			TenantID:        &tenantID,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.publishTx(ctx, tx, events.Event{
			OrgID: req.OrgID,
			Type:  events.TypeDepositRefunded,
			Payload: map[string]any{
				"tenant_id":  req.TenantID.String(),
				"reference":  reference,
				"deposit":    req.DepositAmount,
				"deduction":  deduction,
				"net_refund": netRefund,
			},
			DedupeKey: "deposit_refunded:" + reference,
		}); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, req.OrgID, "ledger.deposit_refunded", "tenant", req.TenantID, map[string]any{
			"reference":  reference,
			"deposit":    req.DepositAmount,
			"deduction":  deduction,
			"net_refund": netRefund,
		})
	})
	if err != nil {
		return ledgerdomain.DepositRefund{}, err
	}

	s.metrics.ObservePosting(string(ledgerdomain.TransactionTypeDepositRefund), s.clock.Now().Sub(started))
	return ledgerdomain.DepositRefund{
		Deposit:   req.DepositAmount,
		Deduction: deduction,
		NetRefund: netRefund,
		Entries:   entries,
	}, nil
}

func (s *Service) PostCapex(ctx context.Context, req ledgerdomain.CapexRequest) ([]ledgerdomain.LedgerEntry, error) {
	if req.OrgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if req.PropertyID == 0 {
		return nil, ledgerdomain.ErrInvalidProperty
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	date := req.Date
	if date.IsZero() {
		date = s.clock.Now().UTC()
	}

	improvements, _ := s.chart.ByCode(chart.CodePropertyImprovements)
	cash, _ := s.chart.ByCode(chart.CodeCash)
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Capital expenditure"
	}

	return s.postPair(ctx, pairPosting{
		orgID:           req.OrgID,
		propertyID:      req.PropertyID,
		date:            date,
		debitAccount:    improvements,
		creditAccount:   cash,
		amount:          req.Amount,
		category:        chart.CategoryCapex,
		description:     description,
		transactionType: ledgerdomain.TransactionTypeCapex,
		referencePrefix: "CAP",
		eventType:       events.TypeCapexPosted,
		auditAction:     "ledger.capex_posted",
	})
}

func (s *Service) PostDepreciation(ctx context.Context, req ledgerdomain.DepreciationRequest) ([]ledgerdomain.LedgerEntry, error) {
	if req.OrgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if req.PropertyID == 0 {
		return nil, ledgerdomain.ErrInvalidProperty
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	date := req.Date
	if date.IsZero() {
		date = s.clock.Now().UTC()
	}

	expense, _ := s.chart.ByCode(chart.CodeDepreciationExpense)
	accumulated, _ := s.chart.ByCode(chart.CodeAccumulatedDepreciation)
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Monthly depreciation"
	}

	return s.postPair(ctx, pairPosting{
		orgID:           req.OrgID,
		propertyID:      req.PropertyID,
		date:            date,
		debitAccount:    expense,
		creditAccount:   accumulated,
		amount:          req.Amount,
		category:        chart.CategoryDepreciation,
		description:     description,
		transactionType: ledgerdomain.TransactionTypeDepreciation,
		referencePrefix: "DPR",
		eventType:       events.TypeDepreciationPosted,
		auditAction:     "ledger.depreciation_posted",
	})
}

type pairPosting struct {
	orgID           snowflake.ID
	propertyID      snowflake.ID
	date            time.Time
	debitAccount    chart.Account
	creditAccount   chart.Account
	amount          int64
	category        chart.Category
	description     string
	transactionType ledgerdomain.TransactionType
	referencePrefix string
	eventType       string
	auditAction     string
}

func (s *Service) postPair(ctx context.Context, p pairPosting) ([]ledgerdomain.LedgerEntry, error) {
	started := s.clock.Now()
	reference := s.reference(p.referencePrefix)
	propertyID := p.propertyID
	entries := []ledgerdomain.LedgerEntry{
		{
			ID:              s.genID.Generate(),
			OrgID:           p.orgID,
			EntryDate:       p.date,
			AccountCode:     p.debitAccount.Code,
			Account:         p.debitAccount.Name,
			Debit:           p.amount,
			Category:        p.category,
			Description:     p.description,
			TransactionType: p.transactionType,
			Reference:       reference,
			PropertyID:      &propertyID,
		},
		{
			ID:              s.genID.Generate(),
			OrgID:           p.orgID,
			EntryDate:       p.date,
			AccountCode:     p.creditAccount.Code,
			Account:         p.creditAccount.Name,
			Credit:          p.amount,
			Category:        p.category,
			Description:     p.description,
			TransactionType: p.transactionType,
			Reference:       reference,
			PropertyID:      &propertyID,
		},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertEntries(ctx, tx, entries); err != nil {
			return err
		}
		if err := s.publishTx(ctx, tx, events.Event{
			OrgID: p.orgID,
			Type:  p.eventType,
			Payload: map[string]any{
				"property_id": p.propertyID.String(),
				"reference":   reference,
				"amount":      p.amount,
			},
			DedupeKey: p.eventType + ":" + reference,
		}); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, p.orgID, p.auditAction, "property", p.propertyID, map[string]any{
			"reference": reference,
			"amount":    p.amount,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObservePosting(string(p.transactionType), s.clock.Now().Sub(started))
	return entries, nil
}

// insertEntries validates the batch and writes it in one statement. Either
// every entry in the batch is persisted or none is.
func (s *Service) insertEntries(ctx context.Context, tx *gorm.DB, entries []ledgerdomain.LedgerEntry) error {
	if err := ledgerdomain.ValidateBalanced(entries); err != nil {
		s.metrics.ObserveUnbalancedRejection()
		return err
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	if invoiceID == 0 {
		return nil, ledgerdomain.ErrInvoiceNotFound
	}
	var inv invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, invoiceID).
		Take(&inv).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ledgerdomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *Service) invoicePosted(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND invoice_id = ? AND transaction_type = ?`,
		orgID,
		invoiceID,
		ledgerdomain.TransactionTypeInvoiceIssue,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// invoiceCovered sums everything already settled against the invoice: cash
// received plus tenant credit applied.
func (s *Service) invoiceCovered(ctx context.Context, tx *gorm.DB, orgID, invoiceID snowflake.ID) (int64, error) {
	var covered int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(credit), 0)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND invoice_id = ?
		   AND account_code = ?
		   AND transaction_type IN (?, ?)`,
		orgID,
		invoiceID,
		chart.CodeAccountsReceivable,
		ledgerdomain.TransactionTypePaymentReceived,
		ledgerdomain.TransactionTypeCreditApplied,
	).Scan(&covered).Error
	if err != nil {
		return 0, err
	}
	return covered, nil
}

func (s *Service) lineItemRemainders(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) (map[snowflake.ID]int64, error) {
	type allocatedRow struct {
		LineItemID snowflake.ID
		Total      int64
	}
	var rows []allocatedRow
	err := tx.WithContext(ctx).Raw(
		`SELECT line_item_id, COALESCE(SUM(credit), 0) AS total
		 FROM property_ledger_entries
		 WHERE org_id = ? AND invoice_id = ?
		   AND account_code = ?
		   AND line_item_id IS NOT NULL
		   AND transaction_type IN (?, ?)
		 GROUP BY line_item_id`,
		inv.OrgID,
		inv.ID,
		chart.CodeAccountsReceivable,
		ledgerdomain.TransactionTypePaymentReceived,
		ledgerdomain.TransactionTypeCreditApplied,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	allocated := make(map[snowflake.ID]int64, len(rows))
	for _, row := range rows {
		allocated[row.LineItemID] = row.Total
	}

	remaining := make(map[snowflake.ID]int64, len(inv.LineItems))
	for _, item := range inv.LineItems {
		left := item.Amount - allocated[item.ID]
		if left < 0 {
			left = 0
		}
		remaining[item.ID] = left
	}
	return remaining, nil
}

func (s *Service) tenantCreditBalance(ctx context.Context, tx *gorm.DB, orgID, tenantID snowflake.ID) (int64, error) {
	var balance int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(credit - debit), 0)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND tenant_id = ? AND account_code = ?`,
		orgID,
		tenantID,
		chart.CodeTenantCredit,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// syncInvoicePaymentState recomputes the invoice payment cache from the
// append-only entries inside the posting transaction. Paid is terminal:
// a later adjustment never regresses the status.
func (s *Service) syncInvoicePaymentState(ctx context.Context, tx *gorm.DB, inv *invoicedomain.Invoice) error {
	var totalPaid int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(debit), 0)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND invoice_id = ?
		   AND account_code = ?
		   AND transaction_type = ?`,
		inv.OrgID,
		inv.ID,
		chart.CodeCash,
		ledgerdomain.TransactionTypePaymentReceived,
	).Scan(&totalPaid).Error
	if err != nil {
		return err
	}

	var creditApplied int64
	err = tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(credit), 0)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND invoice_id = ?
		   AND account_code = ?
		   AND transaction_type = ?`,
		inv.OrgID,
		inv.ID,
		chart.CodeAccountsReceivable,
		ledgerdomain.TransactionTypeCreditApplied,
	).Scan(&creditApplied).Error
	if err != nil {
		return err
	}

	effectivePaid := totalPaid
	if effectivePaid > inv.TotalAmount {
		effectivePaid = inv.TotalAmount
	}
	overpaid := totalPaid - inv.TotalAmount
	if overpaid < 0 {
		overpaid = 0
	}
	covered := effectivePaid + creditApplied
	if covered > inv.TotalAmount {
		covered = inv.TotalAmount
	}
	balance := inv.TotalAmount - covered

	status := inv.Status
	switch {
	case inv.Status.IsTerminal():
		// keep paid
	case totalPaid+creditApplied >= inv.TotalAmount:
		status = invoicedomain.InvoiceStatusPaid
	case totalPaid+creditApplied > 0:
		status = invoicedomain.InvoiceStatusPartial
	default:
		status = invoicedomain.InvoiceStatusOpen
	}

	return tx.WithContext(ctx).Exec(
		`UPDATE property_invoices
		 SET total_paid = ?, effective_paid = ?, overpaid_amount = ?,
		     balance_amount = ?, status = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		totalPaid,
		effectivePaid,
		overpaid,
		balance,
		status,
		s.clock.Now().UTC(),
		inv.OrgID,
		inv.ID,
	).Error
}

func (s *Service) publishTx(ctx context.Context, tx *gorm.DB, event events.Event) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.PublishTx(ctx, tx, event)
}

func (s *Service) auditTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, action, targetType string, targetID snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	target := targetID.String()
	return s.auditSvc.AuditLogTx(ctx, tx, orgID, action, targetType, &target, metadata)
}

func (s *Service) reference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, s.genID.Generate().String())
}
