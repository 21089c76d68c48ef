package chart

import "go.uber.org/fx"

// Kind classifies an account for statement grouping.
type Kind string

const (
	KindAsset     Kind = "asset"
	KindLiability Kind = "liability"
	KindEquity    Kind = "equity"
	KindIncome    Kind = "income"
	KindExpense   Kind = "expense"
)

// Category is the semantic tag a business event carries into the ledger.
type Category string

const (
	CategoryRent         Category = "rent"
	CategoryDeposit      Category = "deposit"
	CategoryUtility      Category = "utility"
	CategoryMaintenance  Category = "maintenance"
	CategoryMisc         Category = "misc"
	CategoryCapex        Category = "capex"
	CategoryDepreciation Category = "depreciation"
	CategoryInterest     Category = "interest"
	CategoryManagement   Category = "management"
)

// Well-known account codes.
const (
	CodeCash                    = "1010"
	CodeAccountsReceivable      = "1100"
	CodePropertyImprovements    = "1500"
	CodeAccumulatedDepreciation = "1510"
	CodeAccountsPayable         = "2000"
	CodeSecurityDepositHeld     = "2100"
	CodeTenantCredit            = "2200"
	CodeLoanPayable             = "2500"
	CodeRetainedEarnings        = "3100"
	CodeRentalIncome            = "4100"
	CodeUtilityReimbursement    = "4200"
	CodeMaintenanceIncome       = "4300"
	CodeMiscIncome              = "4900"
	CodeMaintenanceExpense      = "5100"
	CodeUtilityExpense          = "5200"
	CodeManagementExpense       = "5300"
	CodeInterestExpense         = "5500"
	CodeDepreciationExpense     = "5600"
)

// Statement groups.
const (
	GroupCash             = "Cash"
	GroupReceivables      = "Receivables"
	GroupFixedAssets      = "Fixed Assets"
	GroupPayables         = "Payables"
	GroupTenantLiability  = "Tenant Liabilities"
	GroupDebt             = "Debt"
	GroupEquity           = "Equity"
	GroupOperatingIncome  = "Operating Income"
	GroupOperatingExpense = "Operating Expenses"
	GroupDepreciation     = "Depreciation & Amortization"
	GroupInterest         = "Interest"
)

// Account is one chart-of-accounts entry. Immutable after chart construction.
type Account struct {
	Code  string
	Name  string
	Kind  Kind
	Group string
}

// Chart is the fixed category to account mapping shared by the posting and
// reporting sides. Constructed once at startup and never mutated.
type Chart struct {
	byCode     map[string]Account
	byCategory map[Category]Account
	ordered    []Account
}

// Default builds the standard property-management chart.
func Default() *Chart {
	accounts := []Account{
		{Code: CodeCash, Name: "Cash", Kind: KindAsset, Group: GroupCash},
		{Code: CodeAccountsReceivable, Name: "Accounts Receivable", Kind: KindAsset, Group: GroupReceivables},
		{Code: CodePropertyImprovements, Name: "Property Improvements", Kind: KindAsset, Group: GroupFixedAssets},
		{Code: CodeAccumulatedDepreciation, Name: "Accumulated Depreciation", Kind: KindAsset, Group: GroupFixedAssets},
		{Code: CodeAccountsPayable, Name: "Accounts Payable", Kind: KindLiability, Group: GroupPayables},
		{Code: CodeSecurityDepositHeld, Name: "Security Deposits Held", Kind: KindLiability, Group: GroupTenantLiability},
		{Code: CodeTenantCredit, Name: "Tenant Credit / Prepaid Rent", Kind: KindLiability, Group: GroupTenantLiability},
		{Code: CodeLoanPayable, Name: "Loan Payable", Kind: KindLiability, Group: GroupDebt},
		{Code: CodeRetainedEarnings, Name: "Retained Earnings", Kind: KindEquity, Group: GroupEquity},
		{Code: CodeRentalIncome, Name: "Rental Income", Kind: KindIncome, Group: GroupOperatingIncome},
		{Code: CodeUtilityReimbursement, Name: "Utility Reimbursement", Kind: KindIncome, Group: GroupOperatingIncome},
		{Code: CodeMaintenanceIncome, Name: "Maintenance Income", Kind: KindIncome, Group: GroupOperatingIncome},
		{Code: CodeMiscIncome, Name: "Misc Income", Kind: KindIncome, Group: GroupOperatingIncome},
		{Code: CodeMaintenanceExpense, Name: "Maintenance Expense", Kind: KindExpense, Group: GroupOperatingExpense},
		{Code: CodeUtilityExpense, Name: "Utility Expense", Kind: KindExpense, Group: GroupOperatingExpense},
		{Code: CodeManagementExpense, Name: "Management Expense", Kind: KindExpense, Group: GroupOperatingExpense},
		{Code: CodeInterestExpense, Name: "Interest Expense", Kind: KindExpense, Group: GroupInterest},
		{Code: CodeDepreciationExpense, Name: "Depreciation Expense", Kind: KindExpense, Group: GroupDepreciation},
	}

	categories := map[Category]string{
		CategoryRent:         CodeRentalIncome,
		CategoryUtility:      CodeUtilityReimbursement,
		CategoryMaintenance:  CodeMaintenanceIncome,
		CategoryMisc:         CodeMiscIncome,
		CategoryDeposit:      CodeSecurityDepositHeld,
		CategoryCapex:        CodePropertyImprovements,
		CategoryDepreciation: CodeDepreciationExpense,
		CategoryInterest:     CodeInterestExpense,
		CategoryManagement:   CodeManagementExpense,
	}

	c := &Chart{
		byCode:     make(map[string]Account, len(accounts)),
		byCategory: make(map[Category]Account, len(categories)),
		ordered:    accounts,
	}
	for _, account := range accounts {
		c.byCode[account.Code] = account
	}
	for category, code := range categories {
		c.byCategory[category] = c.byCode[code]
	}
	return c
}

// ByCode returns the account for a code.
func (c *Chart) ByCode(code string) (Account, bool) {
	account, ok := c.byCode[code]
	return account, ok
}

// ByCategory resolves the account a business category posts to.
func (c *Chart) ByCategory(category Category) (Account, bool) {
	account, ok := c.byCategory[category]
	return account, ok
}

// Accounts returns every account in statement order.
func (c *Chart) Accounts() []Account {
	out := make([]Account, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Module provides the shared chart.
var Module = fx.Module("chart",
	fx.Provide(Default),
)
