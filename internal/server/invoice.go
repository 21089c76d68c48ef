package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/propledger/internal/chart"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
)

type lineItemRequest struct {
	Category           string `json:"category"`
	Amount             int64  `json:"amount"`
	Type               string `json:"type"`
	Description        string `json:"description"`
	IsBalanceForwarded bool   `json:"is_balance_forwarded"`
}

type createInvoiceRequest struct {
	TenantID   string            `json:"tenant_id"`
	PropertyID string            `json:"property_id"`
	DateIssued string            `json:"date_issued"`
	DueDate    string            `json:"due_date"`
	LineItems  []lineItemRequest `json:"line_items"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseID(c, "tenant_id", req.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	propertyID, err := parseID(c, "property_id", req.PropertyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dateIssued, err := parseDate(c, "date_issued", req.DateIssued, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dueDate, err := parseDate(c, "due_date", req.DueDate, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make(invoicedomain.LineItems, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, invoicedomain.LineItem{
			Category:           chart.Category(strings.TrimSpace(item.Category)),
			Amount:             item.Amount,
			Type:               strings.TrimSpace(item.Type),
			Description:        strings.TrimSpace(item.Description),
			IsBalanceForwarded: item.IsBalanceForwarded,
		})
	}

	inv, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		OrgID:      orgID,
		TenantID:   tenantID,
		PropertyID: propertyID,
		DateIssued: dateIssued,
		DueDate:    dueDate,
		LineItems:  items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inv)
}

func (s *Server) GetInvoice(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invoiceID, err := parseID(c, "id", c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.GetByID(c.Request.Context(), orgID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) ListInvoices(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tenantID, err := parseID(c, "tenant_id", c.Query("tenant_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoices, err := s.invoiceSvc.ListByTenant(c.Request.Context(), orgID, tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// parseDate accepts RFC 3339 timestamps or bare dates. An empty value is
// allowed when optional.
func parseDate(c *gin.Context, field, raw string, optional bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if optional {
			return time.Time{}, nil
		}
		return time.Time{}, newValidationError(field, "required", field+" is required")
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, newValidationError(field, "invalid_date", field+" must be RFC 3339 or YYYY-MM-DD")
}
