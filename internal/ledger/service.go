// Package ledger holds the in-memory transaction ledger and the queries
// the budget screens are built from.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"btracker/internal/core"
	applog "btracker/internal/log"

	"github.com/shopspring/decimal"
)

// Service owns one session's ledger. Every change is written through to
// the Store before it becomes visible.
type Service struct {
	mu        sync.RWMutex
	store     Store
	txs       []core.Transaction
	publisher Publisher
	cache     ReportCache
	logger    *applog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher announces added transactions. Publish failures are logged only.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCache memoizes Dashboard results until the next change.
func WithCache(c ReportCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentLedger)
		}
	}
}

// WithClock sets the clock that dates entries submitted without a date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Service over store. Call Load to read existing data.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: applog.Default().WithComponent(applog.ComponentLedger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewTransaction is validated input for AddTransaction.
type NewTransaction struct {
	Date     core.Date
	Type     core.Type
	Category core.Category
	Amount   decimal.Decimal
	Note     string
}

// RawTransaction is unparsed form input.
type RawTransaction struct {
	Date     string `json:"date"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
}

// Parse converts form input into a NewTransaction. All failures wrap
// core.ErrValidation.
func (r RawTransaction) Parse() (NewTransaction, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return NewTransaction{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	typ, err := core.ParseType(r.Type)
	if err != nil {
		return NewTransaction{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	category, err := core.ParseCategory(r.Category)
	if err != nil {
		return NewTransaction{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	amount, err := core.ParseAmount(r.Amount)
	if err != nil {
		return NewTransaction{}, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	return NewTransaction{Date: date, Type: typ, Category: category, Amount: amount, Note: r.Note}, nil
}

// Load replaces the in-memory ledger with the store's contents. The
// result carries the number of rows the store had to drop.
func (s *Service) Load(ctx context.Context) (LoadResult, error) {
	res, err := s.store.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Ledger load failed",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldError, err)
		return LoadResult{}, err
	}

	s.mu.Lock()
	s.txs = append([]core.Transaction(nil), res.Transactions...)
	s.clearCache()
	s.mu.Unlock()

	if res.Dropped > 0 {
		s.logger.WarnContext(ctx, "Ledger rows dropped on load",
			applog.FieldOperation, applog.OpLoad,
			applog.FieldDropped, res.Dropped)
	}
	s.logger.InfoContext(ctx, "Ledger loaded",
		applog.FieldOperation, applog.OpLoad,
		applog.FieldCount, len(res.Transactions))
	return res, nil
}

// AddTransaction validates, appends and persists a transaction. If the
// save fails the ledger is left exactly as it was.
func (s *Service) AddTransaction(ctx context.Context, in NewTransaction) (core.Transaction, error) {
	tx, err := core.NewTransaction(in.Date, in.Type, in.Category, in.Amount, in.Note)
	if err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	next := make([]core.Transaction, len(s.txs), len(s.txs)+1)
	copy(next, s.txs)
	next = append(next, tx)
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "Failed to persist transaction",
			applog.FieldOperation, applog.OpAppend,
			applog.FieldError, err)
		return core.Transaction{}, err
	}
	s.txs = next
	s.clearCache()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Transaction added",
		applog.NewFields().
			WithOperation(applog.OpAppend).
			WithTransaction(tx.Date.String(), tx.Type.String(), tx.Category.String(), core.FormatAmount(tx.Amount)).
			ToSlice()...)

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionAdded(ctx, tx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish transaction event",
				applog.FieldError, err)
		}
	}
	return tx, nil
}

// AddTransactionInput parses raw form input and adds it. A blank date
// means today by the service clock, as on the entry form.
func (s *Service) AddTransactionInput(ctx context.Context, raw RawTransaction) (core.Transaction, error) {
	if strings.TrimSpace(raw.Date) == "" {
		raw.Date = s.Today().String()
	}
	in, err := raw.Parse()
	if err != nil {
		return core.Transaction{}, err
	}
	return s.AddTransaction(ctx, in)
}

// Today is the current date by the service clock.
func (s *Service) Today() core.Date {
	return core.DateOf(s.now())
}

// Transactions returns a copy of the ledger in insertion order.
func (s *Service) Transactions() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.txs...)
}

// Len is the number of transactions in the ledger.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

func (s *Service) ListMonths() []core.Month {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ListMonths(s.txs)
}

// Filter selects from the whole ledger; see the package-level Filter.
func (s *Service) Filter(month, category string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Filter(s.txs, month, category)
}

func (s *Service) Summarize(txs []core.Transaction) core.Summary {
	return Summarize(txs)
}

func (s *Service) CategoryBreakdown(txs []core.Transaction) []core.CategoryAmount {
	return CategoryBreakdown(txs)
}

func (s *Service) MonthlyTotals(txs []core.Transaction) []core.MonthAmount {
	return MonthlyTotals(txs)
}

func (s *Service) MonthlyNet(txs []core.Transaction) []core.MonthAmount {
	return MonthlyNet(txs)
}

// Dashboard computes the budget screen for one selection. The summary uses
// both filters, the category breakdown only the month filter, and the
// monthly series the whole ledger. Callers own the returned slices.
func (s *Service) Dashboard(ctx context.Context, month, category string) (core.Dashboard, error) {
	if month == "" {
		month = core.FilterAll
	}
	if category == "" {
		category = core.FilterAll
	}
	key := month + "|" + category
	if s.cache != nil {
		if d, ok := s.cache.Get(key); ok {
			s.logger.DebugContext(ctx, "Dashboard cache hit", "key", key)
			return d.Clone(), nil
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered, err := Filter(s.txs, month, category)
	if err != nil {
		return core.Dashboard{}, err
	}
	byMonth, err := Filter(s.txs, month, core.FilterAll)
	if err != nil {
		return core.Dashboard{}, err
	}
	d := core.Dashboard{
		Month:     month,
		Category:  category,
		Count:     len(filtered),
		Summary:   Summarize(filtered),
		Breakdown: CategoryBreakdown(byMonth),
		Monthly:   MonthlyTotals(s.txs),
		Months:    ListMonths(s.txs),
	}

	// Stored under the read lock so a concurrent change clears it afterwards.
	if s.cache != nil {
		s.cache.Set(key, d.Clone())
	}
	return d, nil
}

// clearCache must run while holding the write lock.
func (s *Service) clearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
}
