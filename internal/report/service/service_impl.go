package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/chart"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
	reportdomain "github.com/smallbiznis/propledger/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Chart *chart.Chart
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	chart *chart.Chart
}

func NewService(p Params) reportdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("report.service"),
		chart: p.Chart,
	}
}

// accountActivity is the raw debit/credit aggregate for one account over a
// window.
type accountActivity struct {
	AccountCode string
	Debits      int64
	Credits     int64
}

// activity aggregates entries per account over [from, to). A zero from means
// "from the beginning"; a zero to means "through the end".
func (s *Service) activity(ctx context.Context, orgID snowflake.ID, from, to time.Time) (map[string]accountActivity, error) {
	query := `SELECT account_code,
	                 COALESCE(SUM(debit), 0) AS debits,
	                 COALESCE(SUM(credit), 0) AS credits
	          FROM property_ledger_entries
	          WHERE org_id = ?`
	args := []any{orgID}
	if !from.IsZero() {
		query += ` AND entry_date >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND entry_date < ?`
		args = append(args, to)
	}
	query += ` GROUP BY account_code`

	var rows []accountActivity
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]accountActivity, len(rows))
	for _, row := range rows {
		out[row.AccountCode] = row
	}
	return out, nil
}

// naturalBalance signs the aggregate by the account's normal side:
// debit-normal for assets and expenses, credit-normal otherwise.
func naturalBalance(kind chart.Kind, a accountActivity) int64 {
	switch kind {
	case chart.KindAsset, chart.KindExpense:
		return a.Debits - a.Credits
	default:
		return a.Credits - a.Debits
	}
}

func (s *Service) AccountBalances(ctx context.Context, orgID snowflake.ID, asOf time.Time) ([]reportdomain.AccountBalance, error) {
	if orgID == 0 {
		return nil, reportdomain.ErrInvalidOrganization
	}
	activity, err := s.activity(ctx, orgID, time.Time{}, endOfDayExclusive(asOf))
	if err != nil {
		return nil, err
	}

	balances := make([]reportdomain.AccountBalance, 0, len(s.chart.Accounts()))
	for _, account := range s.chart.Accounts() {
		a := activity[account.Code]
		balances = append(balances, reportdomain.AccountBalance{
			Code:    account.Code,
			Name:    account.Name,
			Kind:    account.Kind,
			Group:   account.Group,
			Debits:  a.Debits,
			Credits: a.Credits,
			Balance: naturalBalance(account.Kind, a),
		})
		delete(activity, account.Code)
	}

	// Entries against codes outside the chart still surface, so no posted
	// amount can disappear from a trial balance.
	for code, a := range activity {
		balances = append(balances, reportdomain.AccountBalance{
			Code:    code,
			Name:    code,
			Debits:  a.Debits,
			Credits: a.Credits,
			Balance: a.Debits - a.Credits,
		})
	}
	sort.SliceStable(balances, func(i, j int) bool { return balances[i].Code < balances[j].Code })
	return balances, nil
}

func (s *Service) IncomeStatement(ctx context.Context, orgID snowflake.ID, period reportdomain.Period) (reportdomain.IncomeStatement, error) {
	if orgID == 0 {
		return reportdomain.IncomeStatement{}, reportdomain.ErrInvalidOrganization
	}
	if !period.Valid() {
		return reportdomain.IncomeStatement{}, reportdomain.ErrInvalidPeriod
	}
	activity, err := s.activity(ctx, orgID, period.From, period.To)
	if err != nil {
		return reportdomain.IncomeStatement{}, err
	}
	return s.buildIncomeStatement(period, activity), nil
}

func (s *Service) buildIncomeStatement(period reportdomain.Period, activity map[string]accountActivity) reportdomain.IncomeStatement {
	statement := reportdomain.IncomeStatement{Period: period}
	for _, account := range s.chart.Accounts() {
		a, ok := activity[account.Code]
		if !ok {
			continue
		}
		switch account.Kind {
		case chart.KindIncome:
			amount := a.Credits - a.Debits
			statement.IncomeLines = append(statement.IncomeLines, reportdomain.StatementLine{
				Code: account.Code, Label: account.Name, Amount: amount,
			})
			statement.EffectiveGrossIncome += amount
		case chart.KindExpense:
			amount := a.Debits - a.Credits
			switch account.Group {
			case chart.GroupDepreciation:
				statement.Depreciation += amount
			case chart.GroupInterest:
				statement.Interest += amount
			default:
				statement.ExpenseLines = append(statement.ExpenseLines, reportdomain.StatementLine{
					Code: account.Code, Label: account.Name, Amount: amount,
				})
				statement.OperatingExpenses += amount
			}
		}
	}
	statement.NetOperatingIncome = statement.EffectiveGrossIncome - statement.OperatingExpenses
	statement.NetIncome = statement.NetOperatingIncome - statement.Depreciation - statement.Interest
	return statement
}

func (s *Service) BalanceSheet(ctx context.Context, orgID snowflake.ID, asOf time.Time) (reportdomain.BalanceSheet, error) {
	if orgID == 0 {
		return reportdomain.BalanceSheet{}, reportdomain.ErrInvalidOrganization
	}
	activity, err := s.activity(ctx, orgID, time.Time{}, endOfDayExclusive(asOf))
	if err != nil {
		return reportdomain.BalanceSheet{}, err
	}

	sheet := reportdomain.BalanceSheet{AsOf: asOf}
	var lifetimeEarnings int64
	for _, account := range s.chart.Accounts() {
		a, ok := activity[account.Code]
		if !ok {
			continue
		}
		balance := naturalBalance(account.Kind, a)
		line := reportdomain.StatementLine{Code: account.Code, Label: account.Name, Amount: balance}
		switch account.Kind {
		case chart.KindAsset:
			sheet.AssetLines = append(sheet.AssetLines, line)
			sheet.TotalAssets += balance
		case chart.KindLiability:
			sheet.LiabilityLines = append(sheet.LiabilityLines, line)
			sheet.TotalLiabilities += balance
		case chart.KindEquity:
			sheet.EquityLines = append(sheet.EquityLines, line)
			sheet.TotalEquity += balance
		case chart.KindIncome:
			lifetimeEarnings += a.Credits - a.Debits
		case chart.KindExpense:
			lifetimeEarnings -= a.Debits - a.Credits
		}
	}

	// All income and expense activity closes into equity as earnings to
	// date. Batches always balance, so the sheet does too.
	if lifetimeEarnings != 0 {
		sheet.EquityLines = append(sheet.EquityLines, reportdomain.StatementLine{
			Code:   chart.CodeRetainedEarnings,
			Label:  "Current Earnings",
			Amount: lifetimeEarnings,
		})
		sheet.TotalEquity += lifetimeEarnings
	}

	sheet.Imbalance = sheet.TotalAssets - sheet.TotalLiabilities - sheet.TotalEquity
	sheet.Balanced = sheet.Imbalance == 0
	return sheet, nil
}

func (s *Service) CashFlow(ctx context.Context, orgID snowflake.ID, period reportdomain.Period) (reportdomain.CashFlowStatement, error) {
	if orgID == 0 {
		return reportdomain.CashFlowStatement{}, reportdomain.ErrInvalidOrganization
	}
	if !period.Valid() {
		return reportdomain.CashFlowStatement{}, reportdomain.ErrInvalidPeriod
	}

	opening, err := s.activity(ctx, orgID, time.Time{}, period.From)
	if err != nil {
		return reportdomain.CashFlowStatement{}, err
	}
	inPeriod, err := s.activity(ctx, orgID, period.From, period.To)
	if err != nil {
		return reportdomain.CashFlowStatement{}, err
	}

	income := s.buildIncomeStatement(period, inPeriod)
	statement := reportdomain.CashFlowStatement{
		Period:              period,
		NetIncome:           income.NetIncome,
		DepreciationAddback: income.Depreciation,
	}

	delta := func(code string) int64 {
		account, _ := s.chart.ByCode(code)
		return naturalBalance(account.Kind, inPeriod[code])
	}

	statement.ReceivablesChange = delta(chart.CodeAccountsReceivable)
	statement.PayablesChange = delta(chart.CodeAccountsPayable)
	statement.OperatingCashFlow = statement.NetIncome +
		statement.DepreciationAddback -
		statement.ReceivablesChange +
		statement.PayablesChange

	// Gross fixed-asset additions consume cash; the accumulated
	// depreciation movement is already added back above.
	statement.InvestingCashFlow = -delta(chart.CodePropertyImprovements)

	statement.DepositChange = delta(chart.CodeSecurityDepositHeld) + delta(chart.CodeTenantCredit)
	statement.LoanChange = delta(chart.CodeLoanPayable)
	statement.FinancingCashFlow = statement.DepositChange + statement.LoanChange

	statement.NetCashChange = statement.OperatingCashFlow +
		statement.InvestingCashFlow +
		statement.FinancingCashFlow

	openingCash := opening[chart.CodeCash]
	statement.OpeningCash = openingCash.Debits - openingCash.Credits
	statement.ClosingCash = statement.OpeningCash + statement.NetCashChange

	periodCash := inPeriod[chart.CodeCash]
	statement.Balanced = statement.NetCashChange == periodCash.Debits-periodCash.Credits
	return statement, nil
}

func (s *Service) KPIs(ctx context.Context, orgID snowflake.ID, req reportdomain.KPIRequest) (reportdomain.KPIReport, error) {
	if orgID == 0 {
		return reportdomain.KPIReport{}, reportdomain.ErrInvalidOrganization
	}
	period := req.Period
	if !period.Valid() {
		return reportdomain.KPIReport{}, reportdomain.ErrInvalidPeriod
	}

	report := reportdomain.KPIReport{Period: period}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(debit), 0)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND account_code = ? AND transaction_type = ?
		   AND entry_date >= ? AND entry_date < ?`,
		orgID,
		chart.CodeAccountsReceivable,
		ledgerdomain.TransactionTypeInvoiceIssue,
		period.From,
		period.To,
	).Scan(&report.BilledAmount).Error
	if err != nil {
		return reportdomain.KPIReport{}, err
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(debit), 0)
		 FROM property_ledger_entries
		 WHERE org_id = ? AND account_code = ? AND transaction_type = ?
		   AND entry_date >= ? AND entry_date < ?`,
		orgID,
		chart.CodeCash,
		ledgerdomain.TransactionTypePaymentReceived,
		period.From,
		period.To,
	).Scan(&report.CollectedAmount).Error
	if err != nil {
		return reportdomain.KPIReport{}, err
	}

	total, err := s.activity(ctx, orgID, time.Time{}, period.To)
	if err != nil {
		return reportdomain.KPIReport{}, err
	}
	ar := total[chart.CodeAccountsReceivable]
	report.OutstandingBalance = ar.Debits - ar.Credits

	inPeriod, err := s.activity(ctx, orgID, period.From, period.To)
	if err != nil {
		return reportdomain.KPIReport{}, err
	}
	income := s.buildIncomeStatement(period, inPeriod)

	report.CollectionRate = ratio(report.CollectedAmount, report.BilledAmount)
	report.ExpenseRatio = ratio(income.OperatingExpenses, income.EffectiveGrossIncome)

	if req.TotalUnits > 0 {
		report.Occupancy = float64(req.OccupiedUnits) / float64(req.TotalUnits)
		report.VacancyLossRate = 1 - report.Occupancy
	}

	// Debt and investment ratios annualize the period's operating result
	// so short windows stay comparable to the yearly figures supplied in
	// the request.
	months := monthsIn(period)
	annualNOI := income.NetOperatingIncome * 12 / months
	annualNet := income.NetIncome * 12 / months
	report.DSCR = fratio(float64(annualNOI), float64(req.AnnualDebtService))

	loan := total[chart.CodeLoanPayable]
	report.DebtYield = fratio(float64(annualNOI), float64(loan.Credits-loan.Debits))
	report.CashOnCash = fratio(float64(annualNOI-req.AnnualDebtService), float64(req.CashInvested))

	capex := inPeriod[chart.CodePropertyImprovements]
	report.CapexRatio = ratio(capex.Debits-capex.Credits, income.EffectiveGrossIncome)

	repairs := inPeriod[chart.CodeMaintenanceExpense]
	report.RepairsRatio = ratio(repairs.Debits-repairs.Credits, income.EffectiveGrossIncome)

	cash := total[chart.CodeCash]
	closingCash := cash.Debits - cash.Credits
	report.ReserveMonths = fratio(float64(closingCash), float64(income.OperatingExpenses)/float64(months))

	// Cash yield takes depreciation back out of net income: it is the
	// actual cash thrown off per unit of cash put in.
	report.CashYield = fratio(float64(annualNet+income.Depreciation*12/months-req.AnnualDebtService), float64(req.CashInvested))

	var totalAssets, lifetimeEarnings int64
	for _, account := range s.chart.Accounts() {
		a, ok := total[account.Code]
		if !ok {
			continue
		}
		switch account.Kind {
		case chart.KindAsset:
			totalAssets += naturalBalance(account.Kind, a)
		case chart.KindIncome:
			lifetimeEarnings += a.Credits - a.Debits
		case chart.KindExpense:
			lifetimeEarnings -= a.Debits - a.Credits
		}
	}
	assetBase := totalAssets
	if req.PropertyValue > 0 {
		assetBase = req.PropertyValue
	}
	report.ROA = fratio(float64(annualNet), float64(assetBase))
	report.EquityMultiple = fratio(float64(req.EquityInvested+lifetimeEarnings), float64(req.EquityInvested))
	return report, nil
}

func (s *Service) TaxEstimate(ctx context.Context, orgID snowflake.ID, period reportdomain.Period, rate float64) (reportdomain.TaxEstimate, error) {
	if orgID == 0 {
		return reportdomain.TaxEstimate{}, reportdomain.ErrInvalidOrganization
	}
	if !period.Valid() {
		return reportdomain.TaxEstimate{}, reportdomain.ErrInvalidPeriod
	}
	if rate < 0 || rate > 1 {
		return reportdomain.TaxEstimate{}, reportdomain.ErrInvalidTaxRate
	}

	income, err := s.IncomeStatement(ctx, orgID, period)
	if err != nil {
		return reportdomain.TaxEstimate{}, err
	}
	estimate := reportdomain.TaxEstimate{
		Period:    period,
		NetIncome: income.NetIncome,
		Rate:      rate,
	}
	// No estimated liability on a loss period.
	if income.NetIncome > 0 {
		estimate.EstimatedTax = int64(math.Round(rate * float64(income.NetIncome)))
	}
	estimate.AfterTaxIncome = income.NetIncome - estimate.EstimatedTax
	return estimate, nil
}

func (s *Service) YearlySummary(ctx context.Context, orgID snowflake.ID, year int) (reportdomain.YearlyReport, error) {
	if orgID == 0 {
		return reportdomain.YearlyReport{}, reportdomain.ErrInvalidOrganization
	}
	if year < 1970 || year > 9999 {
		return reportdomain.YearlyReport{}, reportdomain.ErrInvalidYear
	}

	type monthResult struct {
		income   reportdomain.IncomeStatement
		cashMove int64
	}
	results := make([]monthResult, 12)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			period := reportdomain.Month(year, time.Month(i+1))
			activity, err := s.activity(gctx, orgID, period.From, period.To)
			if err != nil {
				return err
			}
			cash := activity[chart.CodeCash]
			results[i] = monthResult{
				income:   s.buildIncomeStatement(period, activity),
				cashMove: cash.Debits - cash.Credits,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reportdomain.YearlyReport{}, err
	}

	openingActivity, err := s.activity(ctx, orgID, time.Time{}, reportdomain.Month(year, time.January).From)
	if err != nil {
		return reportdomain.YearlyReport{}, err
	}
	openingCash := openingActivity[chart.CodeCash]
	running := openingCash.Debits - openingCash.Credits

	report := reportdomain.YearlyReport{
		Year:        year,
		Months:      make([]reportdomain.MonthlySummary, 0, 12),
		OpeningCash: running,
	}
	for i, result := range results {
		closing := running + result.cashMove
		summary := reportdomain.MonthlySummary{
			Year:        year,
			Month:       time.Month(i + 1),
			Income:      result.income.EffectiveGrossIncome,
			Expenses:    result.income.OperatingExpenses + result.income.Depreciation + result.income.Interest,
			NetIncome:   result.income.NetIncome,
			OpeningCash: running,
			ClosingCash: closing,
		}
		report.Months = append(report.Months, summary)
		report.TotalIncome += summary.Income
		report.TotalExpenses += summary.Expenses
		report.TotalNetIncome += summary.NetIncome
		running = closing
	}
	report.ClosingCash = running
	return report, nil
}

func ratio(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func fratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// monthsIn counts the calendar months a period spans, never less than one.
func monthsIn(p reportdomain.Period) int64 {
	months := int64(p.To.Year()-p.From.Year())*12 + int64(p.To.Month()-p.From.Month())
	if p.To.Day() > p.From.Day() {
		months++
	}
	if months < 1 {
		return 1
	}
	return months
}

// endOfDayExclusive turns an as-of date into an exclusive upper bound. A
// zero asOf keeps the window unbounded.
func endOfDayExclusive(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return time.Time{}
	}
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, asOf.Location())
	return day.AddDate(0, 0, 1)
}
