package ledger

import (
	"context"
	"errors"

	"btracker/internal/core"
)

var (
	// ErrStoreRead means the backing store exists but cannot be read as a ledger.
	ErrStoreRead = errors.New("store read failed")
	// ErrIncompatibleSchema means required ledger columns are missing.
	ErrIncompatibleSchema = errors.New("incompatible ledger schema")
	// ErrStoreWrite means the ledger could not be persisted; the caller must
	// not assume anything was saved.
	ErrStoreWrite = errors.New("store write failed")
)

// Ports for outbound adapters.
type (
	// Store persists the whole ledger. Save always rewrites everything.
	Store interface {
		Load(ctx context.Context) (LoadResult, error)
		Save(ctx context.Context, txs []core.Transaction) error
	}

	// Publisher announces ledger changes to other systems.
	Publisher interface {
		PublishTransactionAdded(ctx context.Context, tx core.Transaction) error
	}

	// ReportCache memoizes dashboards between ledger changes.
	ReportCache interface {
		Get(key string) (core.Dashboard, bool)
		Set(key string, data core.Dashboard)
		Clear()
	}
)

// LoadResult is the outcome of reading a store. Rows that could not be
// turned into transactions are excluded and reported, never returned.
type LoadResult struct {
	Transactions []core.Transaction
	Dropped      int
	Problems     []RowProblem
}

// RowProblem explains why a stored row was excluded.
type RowProblem struct {
	Line int // 1-based; the header is line 1 for file stores
	Err  error
}

// Drop records an excluded row.
func (r *LoadResult) Drop(line int, err error) {
	r.Dropped++
	r.Problems = append(r.Problems, RowProblem{Line: line, Err: err})
}
