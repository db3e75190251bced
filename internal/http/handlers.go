package http

import (
	"net/http"
	"strings"

	"btracker/internal/core"
	applog "btracker/internal/log"
	"btracker/internal/storage/csvstore"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(map[string]any{
		"categories": core.Categories,
		"types":      core.Types,
	}).Write(w)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(map[string]any{
		"months": monthStrings(s.ledger.ListMonths()),
	}).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f := ParseFilterParams(r.URL.Query())
	txs, err := s.ledger.Filter(f.Month, f.Category)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse(map[string]any{
		"month":        f.Month,
		"category":     f.Category,
		"count":        len(txs),
		"transactions": newTransactionsResponse(txs),
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("invalid request body: " + err.Error()).Write(w)
		return
	}

	tx, err := s.ledger.AddTransactionInput(r.Context(), parser.RawTransaction())
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).DebugContext(r.Context(), "Transaction recorded",
		applog.FieldDate, tx.Date.String(),
		applog.FieldType, tx.Type.String(),
		applog.FieldCategory, tx.Category.String(),
		applog.FieldAmount, core.FormatAmount(tx.Amount))

	NewJSONResponse(newTransactionResponse(tx)).
		Status(http.StatusCreated).
		Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f := ParseFilterParams(r.URL.Query())
	txs, err := s.ledger.Filter(f.Month, f.Category)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse(newSummaryResponse(s.ledger.Summarize(txs))).Write(w)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	f := ParseFilterParams(r.URL.Query())
	txs, err := s.ledger.Filter(f.Month, f.Category)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse(map[string]any{
		"breakdown": newBreakdownResponse(s.ledger.CategoryBreakdown(txs)),
	}).Write(w)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	mode := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("mode")))
	txs := s.ledger.Transactions()

	var series []core.MonthAmount
	switch mode {
	case "", "total":
		mode = "total"
		series = s.ledger.MonthlyTotals(txs)
	case "net":
		series = s.ledger.MonthlyNet(txs)
	default:
		BadRequestError("invalid mode '" + mode + "': must be 'total' or 'net'").Write(w)
		return
	}

	NewJSONResponse(map[string]any{
		"mode":    mode,
		"monthly": newMonthlyResponse(series),
	}).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	f := ParseFilterParams(r.URL.Query())
	d, err := s.ledger.Dashboard(r.Context(), f.Month, f.Category)
	if err != nil {
		writeLedgerError(w, r, err)
		return
	}
	NewJSONResponse(newDashboardResponse(d)).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="data.csv"`)
	if err := csvstore.Encode(w, s.ledger.Transactions()); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export failed",
			applog.FieldError, err)
	}
}

func (s *Server) handleSecurityStats(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse(s.SecurityStats()).Write(w)
}
