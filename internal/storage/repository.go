package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"btracker/internal/core"
	"btracker/internal/ledger"
	applog "btracker/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is a ledger.Store in an embedded SQLite database. Saves
// replace the whole table inside one SQL transaction, so a failed save
// leaves the previous ledger intact.
type SQLiteRepository struct {
	db     *sql.DB
	logger *applog.Logger
}

func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = applog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers within the process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.WithComponent(applog.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Load implements ledger.Store. Rows are returned in insertion order; rows
// that fail to parse are dropped and counted, as with the CSV store.
func (r *SQLiteRepository) Load(ctx context.Context) (ledger.LoadResult, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, date, type, category, amount, note FROM transactions ORDER BY id`)
	if err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: query transactions: %w", ledger.ErrStoreRead, err)
	}
	defer rows.Close()

	res := ledger.LoadResult{Transactions: []core.Transaction{}}
	for rows.Next() {
		var (
			id  int64
			rec core.Record
		)
		if err := rows.Scan(&id, &rec.Date, &rec.Type, &rec.Category, &rec.Amount, &rec.Note); err != nil {
			return ledger.LoadResult{}, fmt.Errorf("%w: scan transaction: %w", ledger.ErrStoreRead, err)
		}
		tx, err := core.ParseRecord(rec)
		if err != nil {
			res.Drop(int(id), err)
			r.logger.WarnContext(ctx, "Dropping malformed ledger row",
				"id", id,
				applog.FieldError, err)
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: iterate transactions: %w", ledger.ErrStoreRead, err)
	}
	return res, nil
}

// Save implements ledger.Store.
func (r *SQLiteRepository) Save(ctx context.Context, txs []core.Transaction) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ledger.ErrStoreWrite, err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("%w: clear transactions: %w", ledger.ErrStoreWrite, err)
	}

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT INTO transactions (date, type, category, amount, note) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("%w: prepare insert: %w", ledger.ErrStoreWrite, err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		rec := tx.ToRecord()
		if _, err := stmt.ExecContext(ctx, rec.Date, rec.Type, rec.Category, rec.Amount, rec.Note); err != nil {
			return fmt.Errorf("%w: insert transaction: %w", ledger.ErrStoreWrite, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ledger.ErrStoreWrite, err)
	}

	r.logger.DebugContext(ctx, "Ledger saved to SQLite", applog.FieldCount, len(txs))
	return nil
}

// Append inserts one transaction after the existing rows.
func (r *SQLiteRepository) Append(ctx context.Context, tx core.Transaction) error {
	rec := tx.ToRecord()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (date, type, category, amount, note) VALUES (?, ?, ?, ?, ?)`,
		rec.Date, rec.Type, rec.Category, rec.Amount, rec.Note)
	if err != nil {
		return fmt.Errorf("%w: append transaction: %w", ledger.ErrStoreWrite, err)
	}
	return nil
}

// Count returns the number of stored rows, including ones Load would drop.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}
