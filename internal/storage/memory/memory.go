package memory

import (
	"context"
	"sync"

	"btracker/internal/core"
	"btracker/internal/ledger"
)

// Store keeps the ledger in process memory only. It satisfies ledger.Store
// for tests and throwaway sessions.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
	saves int
	err   error
}

func New() *Store {
	return &Store{}
}

// NewSeeded returns a store that loads txs.
func NewSeeded(txs []core.Transaction) *Store {
	return &Store{items: append([]core.Transaction(nil), txs...)}
}

// Load returns a copy of the stored transactions.
func (s *Store) Load(_ context.Context) (ledger.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ledger.LoadResult{Transactions: append([]core.Transaction{}, s.items...)}, nil
}

// Save replaces the stored transactions, or fails with the injected error.
func (s *Store) Save(_ context.Context, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.items = append([]core.Transaction(nil), txs...)
	s.saves++
	return nil
}

// FailSaves makes every following Save return err; nil restores saving.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Saves counts successful saves.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
