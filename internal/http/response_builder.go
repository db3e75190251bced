// Package http provides HTTP server and handler implementations.
//
// This file builds JSON responses and maps ledger errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"btracker/internal/core"
	"btracker/internal/ledger"
	applog "btracker/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	payload    any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse(payload any) *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		payload:    payload,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.payload != nil {
		_ = json.NewEncoder(w).Encode(b.payload)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse(errorResponse{Error: message}).Status(statusCode)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// TooManyRequestsError creates a 429 response. Retry-After is retryAfter
// rounded up to whole seconds, and at least 1.
func TooManyRequestsError(retryAfter time.Duration) *JSONResponseBuilder {
	secs := int64(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
		Header("Retry-After", strconv.FormatInt(secs, 10))
}

// writeLedgerError maps a ledger error to a response. Validation failures
// are the caller's fault; anything else is logged and reported as 500.
func writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrValidation) {
		BadRequestError(err.Error()).Write(w)
		return
	}

	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Ledger operation failed",
		applog.FieldError, err)
	switch {
	case errors.Is(err, ledger.ErrStoreWrite):
		InternalServerError("could not save the ledger").Write(w)
	case errors.Is(err, ledger.ErrStoreRead):
		InternalServerError("could not read the ledger").Write(w)
	default:
		InternalServerError("internal error").Write(w)
	}
}

type transactionResponse struct {
	Date     string `json:"date"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
}

func newTransactionResponse(tx core.Transaction) transactionResponse {
	rec := tx.ToRecord()
	return transactionResponse{
		Date:     rec.Date,
		Type:     rec.Type,
		Category: rec.Category,
		Amount:   rec.Amount,
		Note:     rec.Note,
	}
}

func newTransactionsResponse(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		out[i] = newTransactionResponse(tx)
	}
	return out
}

type summaryResponse struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

func newSummaryResponse(s core.Summary) summaryResponse {
	return summaryResponse{
		Income:  core.FormatAmount(s.Income),
		Expense: core.FormatAmount(s.Expense),
		Balance: core.FormatAmount(s.Balance),
	}
}

type categoryAmountResponse struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

func newBreakdownResponse(items []core.CategoryAmount) []categoryAmountResponse {
	out := make([]categoryAmountResponse, len(items))
	for i, ca := range items {
		out[i] = categoryAmountResponse{Category: ca.Category.String(), Amount: core.FormatAmount(ca.Amount)}
	}
	return out
}

type monthAmountResponse struct {
	Month  string `json:"month"`
	Amount string `json:"amount"`
}

func newMonthlyResponse(items []core.MonthAmount) []monthAmountResponse {
	out := make([]monthAmountResponse, len(items))
	for i, ma := range items {
		out[i] = monthAmountResponse{Month: ma.Month.String(), Amount: core.FormatAmount(ma.Amount)}
	}
	return out
}

func monthStrings(months []core.Month) []string {
	out := make([]string, len(months))
	for i, m := range months {
		out[i] = m.String()
	}
	return out
}

type dashboardResponse struct {
	Month     string                   `json:"month"`
	Category  string                   `json:"category"`
	Count     int                      `json:"count"`
	Summary   summaryResponse          `json:"summary"`
	Breakdown []categoryAmountResponse `json:"breakdown"`
	Monthly   []monthAmountResponse    `json:"monthly"`
	Months    []string                 `json:"months"`
}

func newDashboardResponse(d core.Dashboard) dashboardResponse {
	return dashboardResponse{
		Month:     d.Month,
		Category:  d.Category,
		Count:     d.Count,
		Summary:   newSummaryResponse(d.Summary),
		Breakdown: newBreakdownResponse(d.Breakdown),
		Monthly:   newMonthlyResponse(d.Monthly),
		Months:    monthStrings(d.Months),
	}
}
