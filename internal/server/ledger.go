package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
)

func (s *Server) PostInvoice(c *gin.Context) {
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

	entries, err := s.ledgerSvc.PostInvoice(c.Request.Context(), orgID, invoiceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type postPaymentRequest struct {
	Amount int64  `json:"amount"`
	PaidAt string `json:"paid_at"`
}

func (s *Server) PostPayment(c *gin.Context) {
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

	var req postPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	paidAt, err := parseDate(c, "paid_at", req.PaidAt, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.ledgerSvc.PostPayment(c.Request.Context(), orgID, invoiceID, req.Amount, paidAt)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

type applyCreditRequest struct {
	TenantID    string `json:"tenant_id"`
	Amount      int64  `json:"amount"`
	DateApplied string `json:"date_applied"`
	ApplyToCode string `json:"apply_to_code"`
	InvoiceID   string `json:"invoice_id"`
	Description string `json:"description"`
}

func (s *Server) ApplyTenantCredit(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req applyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tenantID, err := parseID(c, "tenant_id", req.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	dateApplied, err := parseDate(c, "date_applied", req.DateApplied, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var invoiceID *snowflake.ID
	if strings.TrimSpace(req.InvoiceID) != "" {
		id, err := parseID(c, "invoice_id", req.InvoiceID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		invoiceID = &id
	}

	result, err := s.ledgerSvc.ApplyTenantCredit(c.Request.Context(), ledgerdomain.ApplyCreditRequest{
		OrgID:       orgID,
		TenantID:    tenantID,
		Amount:      req.Amount,
		DateApplied: dateApplied,
		ApplyToCode: strings.TrimSpace(req.ApplyToCode),
		InvoiceID:   invoiceID,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type refundDepositRequest struct {
	TenantID       string  `json:"tenant_id"`
	PropertyID     string  `json:"property_id"`
	DepositAmount  int64   `json:"deposit_amount"`
	DeductionRatio float64 `json:"deduction_ratio"`
	RefundDate     string  `json:"refund_date"`
}

func (s *Server) RefundDeposit(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req refundDepositRequest
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
	refundDate, err := parseDate(c, "refund_date", req.RefundDate, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ledgerSvc.RefundDeposit(c.Request.Context(), ledgerdomain.RefundDepositRequest{
		OrgID:          orgID,
		TenantID:       tenantID,
		PropertyID:     propertyID,
		DepositAmount:  req.DepositAmount,
		DeductionRatio: req.DeductionRatio,
		RefundDate:     refundDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type propertyPostingRequest struct {
	PropertyID  string `json:"property_id"`
	Amount      int64  `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

func (s *Server) PostCapex(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, propertyID, date, err := s.parsePropertyPosting(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.ledgerSvc.PostCapex(c.Request.Context(), ledgerdomain.CapexRequest{
		OrgID:       orgID,
		PropertyID:  propertyID,
		Amount:      req.Amount,
		Date:        date,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) PostDepreciation(c *gin.Context) {
	orgID, err := orgIDFromRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req, propertyID, date, err := s.parsePropertyPosting(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.ledgerSvc.PostDepreciation(c.Request.Context(), ledgerdomain.DepreciationRequest{
		OrgID:       orgID,
		PropertyID:  propertyID,
		Amount:      req.Amount,
		Date:        date,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) parsePropertyPosting(c *gin.Context) (propertyPostingRequest, snowflake.ID, time.Time, error) {
	var req propertyPostingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, 0, time.Time{}, invalidRequestError()
	}
	propertyID, err := parseID(c, "property_id", req.PropertyID)
	if err != nil {
		return req, 0, time.Time{}, err
	}
	date, err := parseDate(c, "date", req.Date, true)
	if err != nil {
		return req, 0, time.Time{}, err
	}
	return req, propertyID, date, nil
}
