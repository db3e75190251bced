package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"btracker/internal/core"
	"btracker/internal/ledger"
	applog "btracker/internal/log"
)

// Ledger is the part of ledger.Service the API serves.
type Ledger interface {
	AddTransactionInput(ctx context.Context, raw ledger.RawTransaction) (core.Transaction, error)
	Transactions() []core.Transaction
	ListMonths() []core.Month
	Filter(month, category string) ([]core.Transaction, error)
	Summarize(txs []core.Transaction) core.Summary
	CategoryBreakdown(txs []core.Transaction) []core.CategoryAmount
	MonthlyTotals(txs []core.Transaction) []core.MonthAmount
	MonthlyNet(txs []core.Transaction) []core.MonthAmount
	Dashboard(ctx context.Context, month, category string) (core.Dashboard, error)
}

type Server struct {
	http.Server
	ledger  Ledger
	logger  *applog.Logger
	writes  *writeLimiter
	metrics securityMetrics

	shutdownOnce sync.Once
}

// DefaultWriteLimit is the number of transactions one client may add per
// minute unless WithWriteLimit says otherwise.
const DefaultWriteLimit = 60

// Option configures a Server.
type Option func(*Server)

// WithWriteLimit sets how many transactions one client may add per minute.
func WithWriteLimit(perMinute int) Option {
	return func(s *Server) {
		s.writes = newWriteLimiter(perMinute, time.Minute)
	}
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, l Ledger, logger *applog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = applog.Default()
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ledger: l,
		logger: logger,
		writes: newWriteLimiter(DefaultWriteLimit, time.Minute),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.writes.run(5 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/months", s.handleMonths)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.Handle("POST /api/transactions", s.limitWrites(http.HandlerFunc(s.handleCreateTransaction)))
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/monthly", s.handleMonthly)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("GET /api/security", s.handleSecurityStats)

	s.Handler = applog.Middleware(logger)(s.withSecurity(mux))
	return s
}

// withSecurity sets security headers and logs requests that trip a
// screening rule. Flagged requests are still served.
func (s *Server) withSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reasons := screenRequest(r); len(reasons) > 0 {
			s.metrics.flagged(reasons)
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				"client_ip", clientIP(r),
				"reasons", reasons,
				"user_agent", r.UserAgent())
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

// limitWrites rejects a client's ledger writes beyond its per-minute limit.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if ok, retryAfter := s.writes.allow(client); !ok {
			s.metrics.rateLimited()
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Write limit exceeded",
				"client_ip", client,
				"retry_after", retryAfter)
			TooManyRequestsError(retryAfter).Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.writes.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// SecurityStats returns the write limit and screening counters.
func (s *Server) SecurityStats() SecurityStats {
	return s.metrics.snapshot()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
