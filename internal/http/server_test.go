package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"btracker/internal/core"
	"btracker/internal/ledger"
	"btracker/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(date string, typ core.Type, category core.Category, amount string) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{Date: d, Type: typ, Category: category, Amount: decimal.RequireFromString(amount)}
}

func newTestServer(t *testing.T, txs ...core.Transaction) (*Server, *memory.Store) {
	t.Helper()
	return newTestServerWith(t, nil, txs...)
}

func newTestServerWith(t *testing.T, opts []Option, txs ...core.Transaction) (*Server, *memory.Store) {
	t.Helper()
	store := memory.NewSeeded(txs)
	clock := func() time.Time { return time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC) }
	svc := ledger.New(store, ledger.WithClock(clock))
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	srv := NewServer(":0", svc, nil, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, store
}

func do(srv *Server, method, target, contentType, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealthAndHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestUnknownPathAndWrongMethod(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(srv, http.MethodGet, "/api/nope", "", "").Code)

	rr := do(srv, http.MethodDelete, "/api/transactions", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Contains(t, rr.Header().Get("Allow"), http.MethodPost)
	assert.Contains(t, rr.Header().Get("Allow"), http.MethodGet)
}

func TestCategories(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodGet, "/api/categories", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Categories []string `json:"categories"`
		Types      []string `json:"types"`
	}
	decode(t, rr, &body)
	assert.Len(t, body.Categories, len(core.Categories))
	assert.Equal(t, "Food", body.Categories[0])
	assert.Equal(t, []string{"Income", "Expense"}, body.Types)
}

func TestCreateTransactionJSONThenSummary(t *testing.T) {
	srv, store := newTestServer(t)

	rr := do(srv, http.MethodPost, "/api/transactions", "application/json",
		`{"date":"2024-01-05","type":"Income","category":"Salary","amount":"3000.00","note":""}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created transactionResponse
	decode(t, rr, &created)
	assert.Equal(t, transactionResponse{Date: "2024-01-05", Type: "Income", Category: "Salary", Amount: "3000.00"}, created)
	assert.Equal(t, 1, store.Saves())

	rr = do(srv, http.MethodGet, "/api/summary", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var summary summaryResponse
	decode(t, rr, &summary)
	assert.Equal(t, summaryResponse{Income: "3000.00", Expense: "0.00", Balance: "3000.00"}, summary)
}

func TestCreateTransactionForm(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := do(srv, http.MethodPost, "/api/transactions", "application/x-www-form-urlencoded",
		"type=Expense&category=Food&amount=12%2C5&note=lunch")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created transactionResponse
	decode(t, rr, &created)
	assert.Equal(t, "2024-04-02", created.Date, "missing date defaults to today")
	assert.Equal(t, "12.50", created.Amount)
	assert.Equal(t, "lunch", created.Note)
}

func TestCreateTransactionRejectsInvalidInput(t *testing.T) {
	srv, store := newTestServer(t)

	for _, body := range []string{
		`{"date":"2024-01-05","type":"Expense","category":"Food","amount":"-1"}`,
		`{"date":"2024-01-05","type":"Expense","category":"Crypto","amount":"1"}`,
		`{"date":"2024-01-05","type":"Gift","category":"Food","amount":"1"}`,
		`{"date":"05/01/2024","type":"Expense","category":"Food","amount":"1"}`,
		`{"date":"2024-01-05","type":"Expense","category":"Food","amount":"abc"}`,
		`{"date":`,
	} {
		rr := do(srv, http.MethodPost, "/api/transactions", "application/json", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)

		var e errorResponse
		decode(t, rr, &e)
		assert.NotEmpty(t, e.Error)
	}
	assert.Zero(t, store.Saves())
}

func TestCreateTransactionStoreFailure(t *testing.T) {
	srv, store := newTestServer(t)
	store.FailSaves(fmt.Errorf("%w: read-only file system", ledger.ErrStoreWrite))

	rr := do(srv, http.MethodPost, "/api/transactions", "application/json",
		`{"date":"2024-01-05","type":"Expense","category":"Food","amount":"1"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = do(srv, http.MethodGet, "/api/transactions", "", "")
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rr, &list)
	assert.Zero(t, list.Count, "failed save must not leave the row in memory")
}

func seeded(t *testing.T) *Server {
	srv, _ := newTestServer(t,
		tx("2024-01-05", core.Income, "Salary", "3000"),
		tx("2024-01-10", core.Expense, "Food", "50.00"),
		tx("2024-01-20", core.Expense, "Food", "25.00"),
		tx("2024-02-03", core.Expense, "Rent", "900"),
	)
	return srv
}

func TestListTransactionsAndMonths(t *testing.T) {
	srv := seeded(t)

	rr := do(srv, http.MethodGet, "/api/transactions?month=2024-01&category=Food", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Month        string                `json:"month"`
		Category     string                `json:"category"`
		Count        int                   `json:"count"`
		Transactions []transactionResponse `json:"transactions"`
	}
	decode(t, rr, &list)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "2024-01", list.Month)
	assert.Equal(t, "50.00", list.Transactions[0].Amount)

	rr = do(srv, http.MethodGet, "/api/transactions?month=Jan", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(srv, http.MethodGet, "/api/months", "", "")
	var months struct {
		Months []string `json:"months"`
	}
	decode(t, rr, &months)
	assert.Equal(t, []string{"2024-01", "2024-02"}, months.Months)
}

func TestBreakdown(t *testing.T) {
	srv := seeded(t)

	rr := do(srv, http.MethodGet, "/api/breakdown?month=2024-01", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Breakdown []categoryAmountResponse `json:"breakdown"`
	}
	decode(t, rr, &body)
	assert.Equal(t, []categoryAmountResponse{{Category: "Food", Amount: "75.00"}}, body.Breakdown)
}

func TestMonthly(t *testing.T) {
	srv := seeded(t)

	var body struct {
		Mode    string                `json:"mode"`
		Monthly []monthAmountResponse `json:"monthly"`
	}
	rr := do(srv, http.MethodGet, "/api/monthly", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &body)
	assert.Equal(t, "total", body.Mode)
	assert.Equal(t, []monthAmountResponse{{Month: "2024-01", Amount: "3075.00"}, {Month: "2024-02", Amount: "900.00"}}, body.Monthly)

	rr = do(srv, http.MethodGet, "/api/monthly?mode=net", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &body)
	assert.Equal(t, "2925.00", body.Monthly[0].Amount)
	assert.Equal(t, "-900.00", body.Monthly[1].Amount)

	assert.Equal(t, http.StatusBadRequest, do(srv, http.MethodGet, "/api/monthly?mode=avg", "", "").Code)
}

func TestDashboard(t *testing.T) {
	srv := seeded(t)

	rr := do(srv, http.MethodGet, "/api/dashboard?month=2024-01", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var d dashboardResponse
	decode(t, rr, &d)
	assert.Equal(t, "2024-01", d.Month)
	assert.Equal(t, core.FilterAll, d.Category)
	assert.Equal(t, 3, d.Count)
	assert.Equal(t, "2925.00", d.Summary.Balance)
	assert.Len(t, d.Monthly, 2)
	assert.Equal(t, []string{"2024-01", "2024-02"}, d.Months)
}

func TestExport(t *testing.T) {
	srv := seeded(t)

	rr := do(srv, http.MethodGet, "/api/export", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "date,type,category,amount,note", lines[0])
	assert.Equal(t, "2024-01-05,Income,Salary,3000.00,", lines[1])
}

func TestRateLimitOnWrites(t *testing.T) {
	srv, store := newTestServerWith(t, []Option{WithWriteLimit(3)})
	body := `{"date":"2024-01-05","type":"Expense","category":"Food","amount":"1"}`

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusCreated, do(srv, http.MethodPost, "/api/transactions", "application/json", body).Code)
	}
	rr := do(srv, http.MethodPost, "/api/transactions", "application/json", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, 3, store.Saves(), "rejected writes never reach the store")
	assert.Equal(t, int64(1), srv.SecurityStats().RateLimitHits)

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:4000"
	other := httptest.NewRecorder()
	srv.Handler.ServeHTTP(other, req)
	assert.Equal(t, http.StatusCreated, other.Code)

	// Reads are not limited.
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(srv, http.MethodGet, "/api/transactions", "", "").Code)
	}
}

func TestDefaultWriteLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	var last *httptest.ResponseRecorder
	for i := 0; i <= DefaultWriteLimit; i++ {
		last = do(srv, http.MethodPost, "/api/transactions", "application/json",
			`{"date":"2024-01-05","type":"Expense","category":"Food","amount":"1"}`)
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, int64(1), srv.SecurityStats().RateLimitHits)
}

func TestSuspiciousRequestsAreCountedAndServed(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/summary?month=..%2F..%2Fetc%2Fpasswd", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code, "flagged requests still reach the handler")

	rr = do(srv, http.MethodGet, "/api/security", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats SecurityStats
	decode(t, rr, &stats)
	assert.Equal(t, int64(1), stats.SuspiciousRequests)
	assert.Equal(t, map[string]int64{"query": 1, "user_agent": 1}, stats.Flags)
}
