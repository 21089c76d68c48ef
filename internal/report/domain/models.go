package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/chart"
)

// Period is a half-open reporting window [From, To).
type Period struct {
	From time.Time
	To   time.Time
}

// Month builds the period covering one calendar month.
func Month(year int, month time.Month) Period {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{From: from, To: from.AddDate(0, 1, 0)}
}

// Valid reports whether the window is non-empty.
func (p Period) Valid() bool {
	return !p.From.IsZero() && !p.To.IsZero() && p.To.After(p.From)
}

// AccountBalance is the aggregate activity of one account. Balance carries
// the account's natural sign: debit-normal for assets and expenses,
// credit-normal for liabilities, equity and income.
type AccountBalance struct {
	Code    string     `json:"code"`
	Name    string     `json:"name"`
	Kind    chart.Kind `json:"kind"`
	Group   string     `json:"group"`
	Debits  int64      `json:"debits"`
	Credits int64      `json:"credits"`
	Balance int64      `json:"balance"`
}

// StatementLine is one labelled amount on a financial statement.
type StatementLine struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Amount int64  `json:"amount"`
}

// IncomeStatement is the operating result for a period.
type IncomeStatement struct {
	Period               Period          `json:"period"`
	IncomeLines          []StatementLine `json:"income_lines"`
	EffectiveGrossIncome int64           `json:"effective_gross_income"`
	ExpenseLines         []StatementLine `json:"expense_lines"`
	OperatingExpenses    int64           `json:"operating_expenses"`
	NetOperatingIncome   int64           `json:"net_operating_income"`
	Depreciation         int64           `json:"depreciation"`
	Interest             int64           `json:"interest"`
	NetIncome            int64           `json:"net_income"`
}

// BalanceSheet is the financial position at one instant. Retained earnings
// absorbs all lifetime income and expense activity, so a ledger of balanced
// batches always reports Balanced true.
type BalanceSheet struct {
	AsOf             time.Time       `json:"as_of"`
	AssetLines       []StatementLine `json:"asset_lines"`
	TotalAssets      int64           `json:"total_assets"`
	LiabilityLines   []StatementLine `json:"liability_lines"`
	TotalLiabilities int64           `json:"total_liabilities"`
	EquityLines      []StatementLine `json:"equity_lines"`
	TotalEquity      int64           `json:"total_equity"`
	Balanced         bool            `json:"balanced"`
	Imbalance        int64           `json:"imbalance"`
}

// CashFlowStatement reconciles net income to cash movement for a period
// using the indirect method. Balanced reports whether the derived net
// change matches the actual cash-account movement.
type CashFlowStatement struct {
	Period              Period `json:"period"`
	NetIncome           int64  `json:"net_income"`
	DepreciationAddback int64  `json:"depreciation_addback"`
	ReceivablesChange   int64  `json:"receivables_change"`
	PayablesChange      int64  `json:"payables_change"`
	OperatingCashFlow   int64  `json:"operating_cash_flow"`
	InvestingCashFlow   int64  `json:"investing_cash_flow"`
	DepositChange       int64  `json:"deposit_change"`
	LoanChange          int64  `json:"loan_change"`
	FinancingCashFlow   int64  `json:"financing_cash_flow"`
	NetCashChange       int64  `json:"net_cash_change"`
	OpeningCash         int64  `json:"opening_cash"`
	ClosingCash         int64  `json:"closing_cash"`
	Balanced            bool   `json:"balanced"`
}

// KPIRequest carries the externally supplied figures KPI ratios need:
// unit counts and investment basis the ledger does not track.
type KPIRequest struct {
	Period            Period
	TotalUnits        int
	OccupiedUnits     int
	AnnualDebtService int64
	CashInvested      int64
	EquityInvested    int64
	PropertyValue     int64
}

// KPIReport carries the operating ratios for a period. Every ratio divides
// by a figure that can legitimately be zero; in that case the ratio reports
// zero rather than an error.
type KPIReport struct {
	Period             Period  `json:"period"`
	BilledAmount       int64   `json:"billed_amount"`
	CollectedAmount    int64   `json:"collected_amount"`
	CollectionRate     float64 `json:"collection_rate"`
	OutstandingBalance int64   `json:"outstanding_balance"`

	Occupancy       float64 `json:"occupancy"`
	VacancyLossRate float64 `json:"vacancy_loss_rate"`
	ExpenseRatio    float64 `json:"expense_ratio"`
	DSCR            float64 `json:"dscr"`
	DebtYield       float64 `json:"debt_yield"`
	CashOnCash      float64 `json:"cash_on_cash"`
	CashYield       float64 `json:"cash_yield"`
	CapexRatio      float64 `json:"capex_ratio"`
	RepairsRatio    float64 `json:"repairs_ratio"`
	ReserveMonths   float64 `json:"reserve_months"`
	ROA             float64 `json:"roa"`
	EquityMultiple  float64 `json:"equity_multiple"`
}

// TaxEstimate is a flat-rate estimate over the period's net income.
type TaxEstimate struct {
	Period         Period  `json:"period"`
	NetIncome      int64   `json:"net_income"`
	Rate           float64 `json:"rate"`
	EstimatedTax   int64   `json:"estimated_tax"`
	AfterTaxIncome int64   `json:"after_tax_income"`
}

// MonthlySummary is one month's roll-up inside a yearly report.
type MonthlySummary struct {
	Year        int        `json:"year"`
	Month       time.Month `json:"month"`
	Income      int64      `json:"income"`
	Expenses    int64      `json:"expenses"`
	NetIncome   int64      `json:"net_income"`
	OpeningCash int64      `json:"opening_cash"`
	ClosingCash int64      `json:"closing_cash"`
}

// YearlyReport is the twelve monthly summaries plus accumulated totals.
// OpeningCash is January's opening balance and ClosingCash is December's.
type YearlyReport struct {
	Year           int              `json:"year"`
	Months         []MonthlySummary `json:"months"`
	TotalIncome    int64            `json:"total_income"`
	TotalExpenses  int64            `json:"total_expenses"`
	TotalNetIncome int64            `json:"total_net_income"`
	OpeningCash    int64            `json:"opening_cash"`
	ClosingCash    int64            `json:"closing_cash"`
}

// Service produces financial statements from the posted ledger. Reports are
// pure reads; nothing here writes entries.
type Service interface {
	AccountBalances(ctx context.Context, orgID snowflake.ID, asOf time.Time) ([]AccountBalance, error)
	IncomeStatement(ctx context.Context, orgID snowflake.ID, period Period) (IncomeStatement, error)
	BalanceSheet(ctx context.Context, orgID snowflake.ID, asOf time.Time) (BalanceSheet, error)
	CashFlow(ctx context.Context, orgID snowflake.ID, period Period) (CashFlowStatement, error)
	KPIs(ctx context.Context, orgID snowflake.ID, req KPIRequest) (KPIReport, error)
	TaxEstimate(ctx context.Context, orgID snowflake.ID, period Period, rate float64) (TaxEstimate, error)
	YearlySummary(ctx context.Context, orgID snowflake.ID, year int) (YearlyReport, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPeriod       = errors.New("invalid_period")
	ErrInvalidYear         = errors.New("invalid_year")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
)
