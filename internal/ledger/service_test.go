package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"btracker/internal/cache"
	"btracker/internal/core"
	"btracker/internal/ledger"
	"btracker/internal/storage/csvstore"
	"btracker/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTx(date string, typ core.Type, category core.Category, amount string) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{Date: d, Type: typ, Category: category, Amount: dec(amount)}
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []core.Transaction
	err error
}

func (p *recordingPublisher) PublishTransactionAdded(_ context.Context, tx core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, tx)
	return p.err
}

func TestAddThenFreshLoadRoundTrips(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.csv")

	svc := ledger.New(csvstore.New(path, nil))
	res, err := svc.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, res.Transactions)

	added, err := svc.AddTransaction(ctx, ledger.NewTransaction{
		Date:     core.NewDate(2024, 1, 5),
		Type:     core.Income,
		Category: "Salary",
		Amount:   dec("3000.00"),
		Note:     "",
	})
	require.NoError(t, err)

	fresh := ledger.New(csvstore.New(path, nil))
	res, err = fresh.Load(ctx)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, added.ToRecord(), res.Transactions[0].ToRecord())
	assert.True(t, added.Amount.Equal(res.Transactions[0].Amount))

	all, err := fresh.Filter(core.FilterAll, core.FilterAll)
	require.NoError(t, err)
	summary := fresh.Summarize(all)
	assert.True(t, summary.Income.Equal(dec("3000.00")), summary.Income.String())
	assert.True(t, summary.Expense.IsZero())
	assert.True(t, summary.Balance.Equal(dec("3000.00")))
}

func TestAddTransactionRejectsInvalidInput(t *testing.T) {
	store := memory.New()
	svc := ledger.New(store)

	tests := []struct {
		name string
		in   ledger.NewTransaction
		want error
	}{
		{"negative amount", ledger.NewTransaction{Date: core.NewDate(2024, 1, 1), Type: core.Expense, Category: "Food", Amount: dec("-0.01")}, core.ErrNegativeAmount},
		{"unknown category", ledger.NewTransaction{Date: core.NewDate(2024, 1, 1), Type: core.Expense, Category: "Crypto", Amount: dec("1")}, core.ErrInvalidCategory},
		{"unknown type", ledger.NewTransaction{Date: core.NewDate(2024, 1, 1), Type: "Refund", Category: "Food", Amount: dec("1")}, core.ErrInvalidType},
		{"missing date", ledger.NewTransaction{Type: core.Expense, Category: "Food", Amount: dec("1")}, core.ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddTransaction(context.Background(), tt.in)
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, svc.Len())
	assert.Zero(t, store.Saves(), "rejected input must not reach the store")
}

func TestAddTransactionRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSeeded([]core.Transaction{newTx("2024-01-01", core.Income, "Salary", "10")})
	pub := &recordingPublisher{}
	svc := ledger.New(store, ledger.WithPublisher(pub))
	_, err := svc.Load(ctx)
	require.NoError(t, err)

	boom := fmt.Errorf("%w: disk full", ledger.ErrStoreWrite)
	store.FailSaves(boom)

	_, err = svc.AddTransaction(ctx, ledger.NewTransaction{Date: core.NewDate(2024, 1, 2), Type: core.Expense, Category: "Food", Amount: dec("5")})
	require.ErrorIs(t, err, ledger.ErrStoreWrite)
	assert.Equal(t, 1, svc.Len())
	assert.Empty(t, pub.got, "nothing is announced when the save fails")
}

func TestAddTransactionPublishesAndToleratesPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := ledger.New(memory.New(), ledger.WithPublisher(pub))

	tx, err := svc.AddTransaction(context.Background(), ledger.NewTransaction{
		Date: core.NewDate(2024, 5, 1), Type: core.Expense, Category: "Travel", Amount: dec("120.5"), Note: " train ",
	})
	require.NoError(t, err)
	assert.Equal(t, "train", tx.Note)
	assert.True(t, tx.Amount.Equal(dec("120.50")))
	require.Len(t, pub.got, 1)
	assert.Equal(t, tx, pub.got[0])
}

func TestAddTransactionInput(t *testing.T) {
	svc := ledger.New(memory.New())

	tx, err := svc.AddTransactionInput(context.Background(), ledger.RawTransaction{
		Date: "2024-03-15", Type: "Expense", Category: "Health", Amount: "19,99", Note: "pharmacy",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15", tx.Date.String())
	assert.Equal(t, "19.99", core.FormatAmount(tx.Amount))

	_, err = svc.AddTransactionInput(context.Background(), ledger.RawTransaction{
		Date: "yesterday", Type: "Expense", Category: "Health", Amount: "1",
	})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = svc.AddTransactionInput(context.Background(), ledger.RawTransaction{
		Date: "2024-03-15", Type: "Expense", Category: "Health", Amount: "-4",
	})
	assert.ErrorIs(t, err, core.ErrNegativeAmount)
	assert.Equal(t, 1, svc.Len())
}

func TestLoadReportsDroppedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, writeString(path, "date,type,category,amount,note\nnot-a-date,Expense,Food,1,\n2024-01-01,Expense,Food,2,\n"))

	svc := ledger.New(csvstore.New(path, nil))
	res, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, svc.Len())
}

func TestLoadPropagatesStoreReadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, writeString(path, "a,b\n1,2\n"))

	_, err := ledger.New(csvstore.New(path, nil)).Load(context.Background())
	assert.ErrorIs(t, err, ledger.ErrStoreRead)
}

func seededService(t *testing.T, txs ...core.Transaction) *ledger.Service {
	t.Helper()
	svc := ledger.New(memory.NewSeeded(txs))
	_, err := svc.Load(context.Background())
	require.NoError(t, err)
	return svc
}

func TestDashboard(t *testing.T) {
	svc := seededService(t,
		newTx("2024-01-05", core.Income, "Salary", "3000"),
		newTx("2024-01-10", core.Expense, "Food", "50"),
		newTx("2024-01-12", core.Expense, "Rent", "900"),
		newTx("2024-02-01", core.Expense, "Food", "20"),
	)

	d, err := svc.Dashboard(context.Background(), "2024-01", "Food")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Count)
	assert.True(t, d.Summary.Expense.Equal(dec("50")))
	assert.True(t, d.Summary.Income.IsZero())

	// Breakdown ignores the category selection but honours the month.
	require.Len(t, d.Breakdown, 2)
	assert.Equal(t, core.Category("Food"), d.Breakdown[0].Category)
	assert.Equal(t, core.Category("Rent"), d.Breakdown[1].Category)

	// Monthly series always covers the whole ledger.
	require.Len(t, d.Monthly, 2)
	assert.True(t, d.Monthly[0].Amount.Equal(dec("3950")))
	assert.Len(t, d.Months, 2)

	_, err = svc.Dashboard(context.Background(), "January", core.FilterAll)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDashboardCacheIsClearedByAdd(t *testing.T) {
	ctx := context.Background()
	reports := cache.NewLRUCache[core.Dashboard](8, 0)
	svc := ledger.New(memory.New(), ledger.WithCache(reports))

	d, err := svc.Dashboard(ctx, "", "")
	require.NoError(t, err)
	assert.Zero(t, d.Count)
	assert.Equal(t, 1, reports.Size())

	_, err = svc.AddTransaction(ctx, ledger.NewTransaction{Date: core.NewDate(2024, 1, 1), Type: core.Expense, Category: "Food", Amount: dec("1")})
	require.NoError(t, err)
	assert.Zero(t, reports.Size())

	d, err = svc.Dashboard(ctx, core.FilterAll, core.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Count)
}

func TestConcurrentAddsAreAllPersisted(t *testing.T) {
	store := memory.New()
	svc := ledger.New(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddTransaction(context.Background(), ledger.NewTransaction{
				Date: core.NewDate(2024, 1, 1+i), Type: core.Expense, Category: "Food", Amount: decimal.NewFromInt(int64(i)),
			})
			assert.NoError(t, err)
			_, _ = svc.Dashboard(context.Background(), core.FilterAll, core.FilterAll)
		}(i)
	}
	wg.Wait()

	res, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 20)
	assert.Equal(t, 20, svc.Len())
}

func TestAddTransactionInputDefaultsDateToClock(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 7, 9, 23, 30, 0, 0, time.UTC) }
	svc := ledger.New(memory.New(), ledger.WithClock(clock))
	assert.Equal(t, "2024-07-09", svc.Today().String())

	tx, err := svc.AddTransactionInput(context.Background(), ledger.RawTransaction{
		Date: "  ", Type: "Expense", Category: "Food", Amount: "3",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-07-09", tx.Date.String())
	assert.Equal(t, "2024-07", tx.Month().String())
}

func TestDashboardResultDoesNotAliasCache(t *testing.T) {
	ctx := context.Background()
	reports := cache.NewLRUCache[core.Dashboard](8, 0)
	svc := ledger.New(memory.NewSeeded([]core.Transaction{
		newTx("2024-01-10", core.Expense, "Food", "50"),
		newTx("2024-02-01", core.Expense, "Rent", "900"),
	}), ledger.WithCache(reports))
	_, err := svc.Load(ctx)
	require.NoError(t, err)

	first, err := svc.Dashboard(ctx, core.FilterAll, core.FilterAll)
	require.NoError(t, err)
	first.Breakdown[0].Amount = dec("1")
	first.Monthly[0].Amount = dec("1")
	first.Months[0] = first.Months[1]

	hit, err := svc.Dashboard(ctx, core.FilterAll, core.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, 1, reports.Size())
	assert.True(t, hit.Breakdown[0].Amount.Equal(dec("50")))
	assert.True(t, hit.Monthly[0].Amount.Equal(dec("50")))
	assert.Equal(t, "2024-01", hit.Months[0].String())

	hit.Breakdown[0].Amount = dec("2")
	again, err := svc.Dashboard(ctx, core.FilterAll, core.FilterAll)
	require.NoError(t, err)
	assert.True(t, again.Breakdown[0].Amount.Equal(dec("50")))
}
