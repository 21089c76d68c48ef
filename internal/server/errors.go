package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
	reportdomain "github.com/smallbiznis/propledger/internal/report/domain"
)

// APIError is the wire shape of every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

var (
	ErrNotFound           = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "resource not found"}
	ErrServiceUnavailable = &APIError{Status: http.StatusServiceUnavailable, Code: "service_unavailable", Message: "service unavailable"}
)

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "request body could not be parsed"}
}

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusUnprocessableEntity, Code: code, Message: message, Field: field}
}

// domainStatus maps service sentinel errors onto HTTP statuses. Anything
// unmapped is a 500.
func domainStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, ledgerdomain.ErrInvoiceNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, ledgerdomain.ErrInvoiceAlreadyPosted):
		return http.StatusConflict, true
	case errors.Is(err, ledgerdomain.ErrInvalidOrganization),
		errors.Is(err, ledgerdomain.ErrInvalidTenant),
		errors.Is(err, ledgerdomain.ErrInvalidProperty),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidDeductionRatio),
		errors.Is(err, ledgerdomain.ErrInvalidAccount),
		errors.Is(err, invoicedomain.ErrInvalidOrganization),
		errors.Is(err, invoicedomain.ErrInvalidTenant),
		errors.Is(err, invoicedomain.ErrInvalidProperty),
		errors.Is(err, invoicedomain.ErrInvalidLineItems),
		errors.Is(err, invoicedomain.ErrInvalidTotal),
		errors.Is(err, invoicedomain.ErrInvalidInvoiceID),
		errors.Is(err, reportdomain.ErrInvalidOrganization),
		errors.Is(err, reportdomain.ErrInvalidPeriod),
		errors.Is(err, reportdomain.ErrInvalidYear),
		errors.Is(err, reportdomain.ErrInvalidTaxRate):
		return http.StatusUnprocessableEntity, true
	}
	return 0, false
}

// AbortWithError writes the error response and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}
	if status, ok := domainStatus(err); ok {
		c.AbortWithStatusJSON(status, gin.H{"error": &APIError{
			Status:  status,
			Code:    err.Error(),
			Message: err.Error(),
		}})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "internal error",
	}})
}
