package server

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	reportdomain "github.com/smallbiznis/propledger/internal/report/domain"
)

func (s *Server) GetAccountBalances(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	asOf, err := parseDate(c, "as_of", c.Query("as_of"), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	balances, err := s.reportSvc.AccountBalances(c.Request.Context(), orgID, asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		writeCSV(c, "balances.csv", balances)
		return
	}
	c.JSON(http.StatusOK, gin.H{"as_of": asOf, "balances": balances})
}

func (s *Server) GetIncomeStatement(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	period, err := parsePeriod(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	statement, err := s.reportSvc.IncomeStatement(c.Request.Context(), orgID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		writeCSV(c, "income_statement.csv", &statement)
		return
	}
	c.JSON(http.StatusOK, statement)
}

func (s *Server) GetBalanceSheet(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	asOf, err := parseDate(c, "as_of", c.Query("as_of"), true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	sheet, err := s.reportSvc.BalanceSheet(c.Request.Context(), orgID, asOf)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sheet)
}

func (s *Server) GetCashFlow(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	period, err := parsePeriod(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	statement, err := s.reportSvc.CashFlow(c.Request.Context(), orgID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, statement)
}

func (s *Server) GetKPIs(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	period, err := parsePeriod(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Unit counts and investment basis come from the caller; the ledger
	// only knows about money that has been posted.
	req := reportdomain.KPIRequest{Period: period}
	intParams := map[string]*int{
		"total_units":    &req.TotalUnits,
		"occupied_units": &req.OccupiedUnits,
	}
	for name, dst := range intParams {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			AbortWithError(c, newValidationError(name, "invalid_count", name+" must be a non-negative integer"))
			return
		}
		*dst = v
	}
	amountParams := map[string]*int64{
		"annual_debt_service": &req.AnnualDebtService,
		"cash_invested":       &req.CashInvested,
		"equity_invested":     &req.EquityInvested,
		"property_value":      &req.PropertyValue,
	}
	for name, dst := range amountParams {
		raw := strings.TrimSpace(c.Query(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			AbortWithError(c, newValidationError(name, "invalid_amount", name+" must be a non-negative amount in minor units"))
			return
		}
		*dst = v
	}
	if req.OccupiedUnits > req.TotalUnits {
		AbortWithError(c, newValidationError("occupied_units", "invalid_count", "occupied_units cannot exceed total_units"))
		return
	}

	report, err := s.reportSvc.KPIs(c.Request.Context(), orgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) GetTaxEstimate(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	period, err := parsePeriod(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(c.Query("rate")), 64)
	if err != nil {
		AbortWithError(c, newValidationError("rate", "invalid_rate", "rate must be a decimal between 0 and 1"))
		return
	}

	estimate, err := s.reportSvc.TaxEstimate(c.Request.Context(), orgID, period, rate)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (s *Server) GetYearlySummary(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	yearRaw := strings.TrimSpace(c.Query("year"))
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "year must be numeric"))
		return
	}

	summary, err := s.reportSvc.YearlySummary(c.Request.Context(), orgID, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		writeCSV(c, fmt.Sprintf("summary_%d.csv", year), summary.Months)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// parsePeriod reads from/to query params. A missing window defaults to the
// current calendar month.
func parsePeriod(c *gin.Context) (reportdomain.Period, error) {
	from, err := parseDate(c, "from", c.Query("from"), true)
	if err != nil {
		return reportdomain.Period{}, err
	}
	to, err := parseDate(c, "to", c.Query("to"), true)
	if err != nil {
		return reportdomain.Period{}, err
	}
	if from.IsZero() && to.IsZero() {
		now := time.Now().UTC()
		return reportdomain.Month(now.Year(), now.Month()), nil
	}
	period := reportdomain.Period{From: from, To: to}
	if !period.Valid() {
		return reportdomain.Period{}, newValidationError("range", "invalid_range", "from must be before to")
	}
	return period, nil
}

func writeCSV(c *gin.Context, filename string, data interface{}) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	switch v := data.(type) {
	case []reportdomain.AccountBalance:
		_ = writer.Write([]string{"Code", "Name", "Kind", "Group", "Debits", "Credits", "Balance"})
		for _, balance := range v {
			_ = writer.Write([]string{
				balance.Code,
				balance.Name,
				string(balance.Kind),
				balance.Group,
				strconv.FormatInt(balance.Debits, 10),
				strconv.FormatInt(balance.Credits, 10),
				strconv.FormatInt(balance.Balance, 10),
			})
		}
	case *reportdomain.IncomeStatement:
		_ = writer.Write([]string{"Line", "Amount"})
		for _, line := range v.IncomeLines {
			_ = writer.Write([]string{line.Label, strconv.FormatInt(line.Amount, 10)})
		}
		_ = writer.Write([]string{"Effective Gross Income", strconv.FormatInt(v.EffectiveGrossIncome, 10)})
		for _, line := range v.ExpenseLines {
			_ = writer.Write([]string{line.Label, strconv.FormatInt(line.Amount, 10)})
		}
		_ = writer.Write([]string{"Operating Expenses", strconv.FormatInt(v.OperatingExpenses, 10)})
		_ = writer.Write([]string{"Net Operating Income", strconv.FormatInt(v.NetOperatingIncome, 10)})
		_ = writer.Write([]string{"Depreciation", strconv.FormatInt(v.Depreciation, 10)})
		_ = writer.Write([]string{"Interest", strconv.FormatInt(v.Interest, 10)})
		_ = writer.Write([]string{"Net Income", strconv.FormatInt(v.NetIncome, 10)})
	case []reportdomain.MonthlySummary:
		_ = writer.Write([]string{"Month", "Income", "Expenses", "Net Income", "Opening Cash", "Closing Cash"})
		for _, month := range v {
			_ = writer.Write([]string{
				month.Month.String(),
				strconv.FormatInt(month.Income, 10),
				strconv.FormatInt(month.Expenses, 10),
				strconv.FormatInt(month.NetIncome, 10),
				strconv.FormatInt(month.OpeningCash, 10),
				strconv.FormatInt(month.ClosingCash, 10),
			})
		}
	}
}
