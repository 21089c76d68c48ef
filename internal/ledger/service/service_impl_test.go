package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditservice "github.com/smallbiznis/propledger/internal/audit/service"
	"github.com/smallbiznis/propledger/internal/chart"
	"github.com/smallbiznis/propledger/internal/clock"
	"github.com/smallbiznis/propledger/internal/events"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testSchema = []string{
	`CREATE TABLE property_invoices (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		tenant_id INTEGER NOT NULL,
		property_id INTEGER NOT NULL,
		date_issued DATETIME NOT NULL,
		due_date DATETIME NOT NULL,
		line_items TEXT NOT NULL,
		total_amount INTEGER NOT NULL,
		total_paid INTEGER NOT NULL DEFAULT 0,
		effective_paid INTEGER NOT NULL DEFAULT 0,
		overpaid_amount INTEGER NOT NULL DEFAULT 0,
		balance_amount INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE property_ledger_entries (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		entry_date DATETIME NOT NULL,
		account_code TEXT NOT NULL,
		account TEXT NOT NULL,
		debit INTEGER NOT NULL DEFAULT 0,
		credit INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		description TEXT,
		transaction_type TEXT NOT NULL,
		reference TEXT NOT NULL,
		invoice_id INTEGER,
		line_item_id INTEGER,
		property_id INTEGER,
		tenant_id INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE ledger_events (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		dedupe_key TEXT,
		published BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX idx_ledger_events_dedupe ON ledger_events (org_id, dedupe_key)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		org_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

type testEnv struct {
	db      *gorm.DB
	svc     ledgerdomain.Service
	genID   *snowflake.Node
	orgID   snowflake.ID
	tenant  snowflake.ID
	prop    snowflake.ID
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range testSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	genID, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	now := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	log := zap.NewNop()
	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: genID})

	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    genID,
		Chart:    chart.Default(),
		Clock:    clock.Fixed{At: now},
		Outbox:   events.NewOutbox(db, genID),
		AuditSvc: auditSvc,
		Cfg:      Config{MinPartialAllocation: 5000},
	})

	return &testEnv{
		db:     db,
		svc:    svc,
		genID:  genID,
		orgID:  genID.Generate(),
		tenant: genID.Generate(),
		prop:   genID.Generate(),
		now:    now,
	}
}

func (e *testEnv) createInvoice(t *testing.T, items []invoicedomain.LineItem) *invoicedomain.Invoice {
	t.Helper()
	for i := range items {
		if items[i].ID == 0 {
			items[i].ID = e.genID.Generate()
		}
	}
	inv := &invoicedomain.Invoice{
		ID:          e.genID.Generate(),
		OrgID:       e.orgID,
		TenantID:    e.tenant,
		PropertyID:  e.prop,
		DateIssued:  e.now,
		DueDate:     e.now.AddDate(0, 0, 14),
		LineItems:   items,
		TotalAmount: invoicedomain.LineItems(items).Total(),
		Status:      invoicedomain.InvoiceStatusDraft,
	}
	inv.BalanceAmount = inv.TotalAmount
	if err := e.db.Create(inv).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func (e *testEnv) reloadInvoice(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	var inv invoicedomain.Invoice
	if err := e.db.Where("org_id = ? AND id = ?", e.orgID, id).Take(&inv).Error; err != nil {
		t.Fatalf("reload invoice: %v", err)
	}
	return &inv
}

func (e *testEnv) entriesFor(t *testing.T, invoiceID snowflake.ID) []ledgerdomain.LedgerEntry {
	t.Helper()
	var entries []ledgerdomain.LedgerEntry
	if err := e.db.Where("org_id = ? AND invoice_id = ?", e.orgID, invoiceID).
		Order("id").Find(&entries).Error; err != nil {
		t.Fatalf("load entries: %v", err)
	}
	return entries
}

func sumDebitsCredits(entries []ledgerdomain.LedgerEntry) (int64, int64) {
	var debits, credits int64
	for _, entry := range entries {
		debits += entry.Debit
		credits += entry.Credit
	}
	return debits, credits
}

func accountTotal(entries []ledgerdomain.LedgerEntry, code string) (int64, int64) {
	var debit, credit int64
	for _, entry := range entries {
		if entry.AccountCode == code {
			debit += entry.Debit
			credit += entry.Credit
		}
	}
	return debit, credit
}

func TestPostInvoice(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent", Description: "March rent"},
		{Category: chart.CategoryUtility, Amount: 20000, Type: "utility", Description: "Water"},
	})

	entries, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID)
	if err != nil {
		t.Fatalf("post invoice: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	debits, credits := sumDebitsCredits(entries)
	if debits != credits || debits != 120000 {
		t.Fatalf("unbalanced batch: debits=%d credits=%d", debits, credits)
	}
	if _, rent := accountTotal(entries, chart.CodeRentalIncome); rent != 100000 {
		t.Fatalf("rental income credit = %d, want 100000", rent)
	}
	if _, util := accountTotal(entries, chart.CodeUtilityReimbursement); util != 20000 {
		t.Fatalf("utility reimbursement credit = %d, want 20000", util)
	}
	if ar, _ := accountTotal(entries, chart.CodeAccountsReceivable); ar != 120000 {
		t.Fatalf("receivable debit = %d, want 120000", ar)
	}

	got := env.reloadInvoice(t, inv.ID)
	if got.Status != invoicedomain.InvoiceStatusOpen {
		t.Fatalf("status = %s, want open", got.Status)
	}
	if got.BalanceAmount != 120000 {
		t.Fatalf("balance = %d, want 120000", got.BalanceAmount)
	}

	var eventCount int64
	if err := env.db.Raw(`SELECT COUNT(1) FROM ledger_events WHERE org_id = ? AND event_type = ?`,
		env.orgID, events.TypeInvoicePosted).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("event count = %d, want 1", eventCount)
	}
	var auditCount int64
	if err := env.db.Raw(`SELECT COUNT(1) FROM audit_logs WHERE org_id = ? AND action = ?`,
		env.orgID, "ledger.invoice_posted").Scan(&auditCount).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if auditCount != 1 {
		t.Fatalf("audit count = %d, want 1", auditCount)
	}
}

func TestPostInvoiceTwiceRejected(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
	})

	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("first posting: %v", err)
	}
	_, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID)
	if !errors.Is(err, ledgerdomain.ErrInvoiceAlreadyPosted) {
		t.Fatalf("second posting err = %v, want ErrInvoiceAlreadyPosted", err)
	}
	if got := env.entriesFor(t, inv.ID); len(got) != 2 {
		t.Fatalf("entries after rejected repost = %d, want 2", len(got))
	}
}

func TestPostInvoiceSkipsBalanceForwardedItems(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
		{Category: chart.CategoryRent, Amount: 40000, Type: "balance_forward", IsBalanceForwarded: true},
	})

	entries, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID)
	if err != nil {
		t.Fatalf("post invoice: %v", err)
	}
	// The forwarded item must not be re-recognized as income, and the new
	// receivable covers only the current-period charge.
	if _, rent := accountTotal(entries, chart.CodeRentalIncome); rent != 100000 {
		t.Fatalf("rental income credit = %d, want 100000", rent)
	}
	if ar, _ := accountTotal(entries, chart.CodeAccountsReceivable); ar != 100000 {
		t.Fatalf("receivable debit = %d, want 100000", ar)
	}
}

func TestPostInvoiceNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.PostInvoice(context.Background(), env.orgID, env.genID.Generate())
	if !errors.Is(err, ledgerdomain.ErrInvoiceNotFound) {
		t.Fatalf("err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestPostPaymentFullSettlement(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
		{Category: chart.CategoryUtility, Amount: 20000, Type: "utility"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}

	entries, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 120000, env.now)
	if err != nil {
		t.Fatalf("post payment: %v", err)
	}
	debits, credits := sumDebitsCredits(entries)
	if debits != credits || debits != 120000 {
		t.Fatalf("unbalanced payment batch: debits=%d credits=%d", debits, credits)
	}
	if cash, _ := accountTotal(entries, chart.CodeCash); cash != 120000 {
		t.Fatalf("cash debit = %d, want 120000", cash)
	}
	if _, ar := accountTotal(entries, chart.CodeAccountsReceivable); ar != 120000 {
		t.Fatalf("receivable credit = %d, want 120000", ar)
	}

	got := env.reloadInvoice(t, inv.ID)
	if got.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("status = %s, want paid", got.Status)
	}
	if got.TotalPaid != 120000 || got.BalanceAmount != 0 {
		t.Fatalf("total_paid=%d balance=%d, want 120000/0", got.TotalPaid, got.BalanceAmount)
	}
}

func TestPostPaymentAllocatesByPriority(t *testing.T) {
	env := newTestEnv(t)
	// Utility listed first on the invoice, but rent carries higher priority
	// and must be funded first.
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryUtility, Amount: 20000, Type: "utility"},
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}

	entries, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 60000, env.now)
	if err != nil {
		t.Fatalf("post payment: %v", err)
	}

	var rentApplied, utilApplied int64
	for _, entry := range entries {
		if entry.AccountCode != chart.CodeAccountsReceivable {
			continue
		}
		switch entry.Category {
		case chart.CategoryRent:
			rentApplied += entry.Credit
		case chart.CategoryUtility:
			utilApplied += entry.Credit
		}
	}
	if rentApplied != 60000 {
		t.Fatalf("rent allocation = %d, want 60000", rentApplied)
	}
	if utilApplied != 0 {
		t.Fatalf("utility allocation = %d, want 0", utilApplied)
	}

	got := env.reloadInvoice(t, inv.ID)
	if got.Status != invoicedomain.InvoiceStatusPartial {
		t.Fatalf("status = %s, want partial", got.Status)
	}
	if got.BalanceAmount != 60000 {
		t.Fatalf("balance = %d, want 60000", got.BalanceAmount)
	}
}

func TestPostPaymentSmallRemainderStaysUnallocated(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
		{Category: chart.CategoryUtility, Amount: 20000, Type: "utility"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}

	// 2000 left after rent settles, below the 5000 partial threshold.
	entries, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 102000, env.now)
	if err != nil {
		t.Fatalf("post payment: %v", err)
	}
	debits, credits := sumDebitsCredits(entries)
	if debits != credits || debits != 102000 {
		t.Fatalf("unbalanced payment batch: debits=%d credits=%d", debits, credits)
	}

	var unallocated int64
	for _, entry := range entries {
		if entry.AccountCode == chart.CodeAccountsReceivable && entry.LineItemID == nil {
			unallocated += entry.Credit
		}
	}
	if unallocated != 2000 {
		t.Fatalf("unallocated remainder = %d, want 2000", unallocated)
	}

	got := env.reloadInvoice(t, inv.ID)
	if got.Status != invoicedomain.InvoiceStatusPartial {
		t.Fatalf("status = %s, want partial", got.Status)
	}
	if got.BalanceAmount != 18000 {
		t.Fatalf("balance = %d, want 18000", got.BalanceAmount)
	}
}

func TestPostPaymentOverpaymentBecomesTenantCredit(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}

	entries, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 130000, env.now)
	if err != nil {
		t.Fatalf("post payment: %v", err)
	}
	if _, credit := accountTotal(entries, chart.CodeTenantCredit); credit != 30000 {
		t.Fatalf("tenant credit = %d, want 30000", credit)
	}

	got := env.reloadInvoice(t, inv.ID)
	if got.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("status = %s, want paid", got.Status)
	}
	if got.TotalPaid != 130000 || got.EffectivePaid != 100000 || got.OverpaidAmount != 30000 {
		t.Fatalf("paid=%d effective=%d overpaid=%d, want 130000/100000/30000",
			got.TotalPaid, got.EffectivePaid, got.OverpaidAmount)
	}
}

func TestPaidStatusIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}
	if _, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 100000, env.now); err != nil {
		t.Fatalf("first payment: %v", err)
	}

	// A second payment against a settled invoice is all overpayment.
	entries, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 10000, env.now)
	if err != nil {
		t.Fatalf("second payment: %v", err)
	}
	if _, credit := accountTotal(entries, chart.CodeTenantCredit); credit != 10000 {
		t.Fatalf("tenant credit = %d, want 10000", credit)
	}

	got := env.reloadInvoice(t, inv.ID)
	if got.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("status = %s, want paid", got.Status)
	}
}

func TestPostPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.PostPayment(context.Background(), env.orgID, env.genID.Generate(), 0, env.now); !errors.Is(err, ledgerdomain.ErrInvalidAmount) {
		t.Fatalf("zero amount err = %v, want ErrInvalidAmount", err)
	}
	if _, err := env.svc.PostPayment(context.Background(), env.orgID, env.genID.Generate(), 5000, env.now); !errors.Is(err, ledgerdomain.ErrInvoiceNotFound) {
		t.Fatalf("missing invoice err = %v, want ErrInvoiceNotFound", err)
	}
}

func TestApplyTenantCredit(t *testing.T) {
	env := newTestEnv(t)
	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}
	// Overpay to put 30000 of credit on file.
	if _, err := env.svc.PostPayment(context.Background(), env.orgID, inv.ID, 130000, env.now); err != nil {
		t.Fatalf("post payment: %v", err)
	}

	second := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
	})
	if _, err := env.svc.PostInvoice(context.Background(), env.orgID, second.ID); err != nil {
		t.Fatalf("post second invoice: %v", err)
	}

	result, err := env.svc.ApplyTenantCredit(context.Background(), ledgerdomain.ApplyCreditRequest{
		OrgID:     env.orgID,
		TenantID:  env.tenant,
		Amount:    50000,
		InvoiceID: &second.ID,
	})
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	// Only 30000 is on file; the request is capped, never overdrawn.
	if result.Applied != 30000 || result.Remainder != 20000 {
		t.Fatalf("applied=%d remainder=%d, want 30000/20000", result.Applied, result.Remainder)
	}

	got := env.reloadInvoice(t, second.ID)
	if got.Status != invoicedomain.InvoiceStatusPartial {
		t.Fatalf("status = %s, want partial", got.Status)
	}
	if got.BalanceAmount != 70000 {
		t.Fatalf("balance = %d, want 70000", got.BalanceAmount)
	}

	// Cash for the rest settles the invoice; applied credit counts toward it.
	if _, err := env.svc.PostPayment(context.Background(), env.orgID, second.ID, 70000, env.now); err != nil {
		t.Fatalf("settling payment: %v", err)
	}
	got = env.reloadInvoice(t, second.ID)
	if got.Status != invoicedomain.InvoiceStatusPaid {
		t.Fatalf("status = %s, want paid", got.Status)
	}
	if got.BalanceAmount != 0 {
		t.Fatalf("balance = %d, want 0", got.BalanceAmount)
	}
}

func TestApplyTenantCreditNoneAvailable(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.svc.ApplyTenantCredit(context.Background(), ledgerdomain.ApplyCreditRequest{
		OrgID:    env.orgID,
		TenantID: env.tenant,
		Amount:   25000,
	})
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if result.Applied != 0 || result.Remainder != 25000 {
		t.Fatalf("applied=%d remainder=%d, want 0/25000", result.Applied, result.Remainder)
	}
	if len(result.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(result.Entries))
	}
}

func TestApplyTenantCreditValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.ApplyTenantCredit(ctx, ledgerdomain.ApplyCreditRequest{TenantID: env.tenant, Amount: 100}); !errors.Is(err, ledgerdomain.ErrInvalidOrganization) {
		t.Fatalf("missing org err = %v", err)
	}
	if _, err := env.svc.ApplyTenantCredit(ctx, ledgerdomain.ApplyCreditRequest{OrgID: env.orgID, Amount: 100}); !errors.Is(err, ledgerdomain.ErrInvalidTenant) {
		t.Fatalf("missing tenant err = %v", err)
	}
	if _, err := env.svc.ApplyTenantCredit(ctx, ledgerdomain.ApplyCreditRequest{OrgID: env.orgID, TenantID: env.tenant, Amount: -5}); !errors.Is(err, ledgerdomain.ErrInvalidAmount) {
		t.Fatalf("negative amount err = %v", err)
	}
	if _, err := env.svc.ApplyTenantCredit(ctx, ledgerdomain.ApplyCreditRequest{OrgID: env.orgID, TenantID: env.tenant, Amount: 100, ApplyToCode: "9999"}); !errors.Is(err, ledgerdomain.ErrInvalidAccount) {
		t.Fatalf("unknown account err = %v", err)
	}
}

func TestRefundDeposit(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.svc.RefundDeposit(context.Background(), ledgerdomain.RefundDepositRequest{
		OrgID:          env.orgID,
		TenantID:       env.tenant,
		PropertyID:     env.prop,
		DepositAmount:  50000,
		DeductionRatio: 0.2,
		RefundDate:     env.now,
	})
	if err != nil {
		t.Fatalf("refund deposit: %v", err)
	}
	if result.Deduction != 10000 || result.NetRefund != 40000 {
		t.Fatalf("deduction=%d net=%d, want 10000/40000", result.Deduction, result.NetRefund)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(result.Entries))
	}

	debits, credits := sumDebitsCredits(result.Entries)
	if debits != credits || debits != 50000 {
		t.Fatalf("unbalanced refund batch: debits=%d credits=%d", debits, credits)
	}
	if deposit, _ := accountTotal(result.Entries, chart.CodeSecurityDepositHeld); deposit != 50000 {
		t.Fatalf("deposit released = %d, want 50000", deposit)
	}
	if _, cash := accountTotal(result.Entries, chart.CodeCash); cash != 40000 {
		t.Fatalf("cash refunded = %d, want 40000", cash)
	}
	if _, income := accountTotal(result.Entries, chart.CodeMaintenanceIncome); income != 10000 {
		t.Fatalf("deduction income = %d, want 10000", income)
	}
}

func TestRefundDepositFullReturn(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.svc.RefundDeposit(context.Background(), ledgerdomain.RefundDepositRequest{
		OrgID:          env.orgID,
		TenantID:       env.tenant,
		PropertyID:     env.prop,
		DepositAmount:  50000,
		DeductionRatio: 0,
	})
	if err != nil {
		t.Fatalf("refund deposit: %v", err)
	}
	if result.Deduction != 0 || result.NetRefund != 50000 {
		t.Fatalf("deduction=%d net=%d, want 0/50000", result.Deduction, result.NetRefund)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(result.Entries))
	}
}

func TestRefundDepositValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.RefundDeposit(context.Background(), ledgerdomain.RefundDepositRequest{
		OrgID:          env.orgID,
		TenantID:       env.tenant,
		PropertyID:     env.prop,
		DepositAmount:  50000,
		DeductionRatio: 1.5,
	})
	if !errors.Is(err, ledgerdomain.ErrInvalidDeductionRatio) {
		t.Fatalf("err = %v, want ErrInvalidDeductionRatio", err)
	}
}

func TestPostCapex(t *testing.T) {
	env := newTestEnv(t)
	entries, err := env.svc.PostCapex(context.Background(), ledgerdomain.CapexRequest{
		OrgID:      env.orgID,
		PropertyID: env.prop,
		Amount:     500000,
		Date:       env.now,
	})
	if err != nil {
		t.Fatalf("post capex: %v", err)
	}
	if improvements, _ := accountTotal(entries, chart.CodePropertyImprovements); improvements != 500000 {
		t.Fatalf("improvements debit = %d, want 500000", improvements)
	}
	if _, cash := accountTotal(entries, chart.CodeCash); cash != 500000 {
		t.Fatalf("cash credit = %d, want 500000", cash)
	}
}

func TestPostDepreciation(t *testing.T) {
	env := newTestEnv(t)
	entries, err := env.svc.PostDepreciation(context.Background(), ledgerdomain.DepreciationRequest{
		OrgID:      env.orgID,
		PropertyID: env.prop,
		Amount:     4200,
		Date:       env.now,
	})
	if err != nil {
		t.Fatalf("post depreciation: %v", err)
	}
	if expense, _ := accountTotal(entries, chart.CodeDepreciationExpense); expense != 4200 {
		t.Fatalf("depreciation expense debit = %d, want 4200", expense)
	}
	if _, accumulated := accountTotal(entries, chart.CodeAccumulatedDepreciation); accumulated != 4200 {
		t.Fatalf("accumulated depreciation credit = %d, want 4200", accumulated)
	}
}

func TestLedgerStaysBalancedAcrossMixedActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv := env.createInvoice(t, []invoicedomain.LineItem{
		{Category: chart.CategoryRent, Amount: 100000, Type: "rent"},
		{Category: chart.CategoryUtility, Amount: 20000, Type: "utility"},
	})
	if _, err := env.svc.PostInvoice(ctx, env.orgID, inv.ID); err != nil {
		t.Fatalf("post invoice: %v", err)
	}
	if _, err := env.svc.PostPayment(ctx, env.orgID, inv.ID, 150000, env.now); err != nil {
		t.Fatalf("post payment: %v", err)
	}
	if _, err := env.svc.ApplyTenantCredit(ctx, ledgerdomain.ApplyCreditRequest{
		OrgID: env.orgID, TenantID: env.tenant, Amount: 10000,
	}); err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if _, err := env.svc.RefundDeposit(ctx, ledgerdomain.RefundDepositRequest{
		OrgID: env.orgID, TenantID: env.tenant, PropertyID: env.prop,
		DepositAmount: 50000, DeductionRatio: 0.1,
	}); err != nil {
		t.Fatalf("refund deposit: %v", err)
	}
	if _, err := env.svc.PostCapex(ctx, ledgerdomain.CapexRequest{
		OrgID: env.orgID, PropertyID: env.prop, Amount: 300000,
	}); err != nil {
		t.Fatalf("post capex: %v", err)
	}
	if _, err := env.svc.PostDepreciation(ctx, ledgerdomain.DepreciationRequest{
		OrgID: env.orgID, PropertyID: env.prop, Amount: 2500,
	}); err != nil {
		t.Fatalf("post depreciation: %v", err)
	}

	var debits, credits int64
	if err := env.db.Raw(`SELECT COALESCE(SUM(debit), 0) FROM property_ledger_entries WHERE org_id = ?`, env.orgID).Scan(&debits).Error; err != nil {
		t.Fatalf("sum debits: %v", err)
	}
	if err := env.db.Raw(`SELECT COALESCE(SUM(credit), 0) FROM property_ledger_entries WHERE org_id = ?`, env.orgID).Scan(&credits).Error; err != nil {
		t.Fatalf("sum credits: %v", err)
	}
	if debits != credits {
		t.Fatalf("ledger out of balance: debits=%d credits=%d", debits, credits)
	}
	if debits == 0 {
		t.Fatal("expected ledger activity")
	}
}
