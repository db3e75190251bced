// Package csvstore keeps the ledger in a flat CSV file with the header
// date,type,category,amount,note.
package csvstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"btracker/internal/core"
	"btracker/internal/ledger"
	applog "btracker/internal/log"
)

// Store is a ledger.Store backed by one CSV file. Saves replace the file
// atomically; concurrent processes writing the same file still race and the
// last save wins.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *applog.Logger
}

// New returns a store for path. The file is created on first save.
func New(path string, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.Default()
	}
	return &Store{path: path, logger: logger.WithComponent(applog.ComponentStorage)}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the ledger. A missing or empty file is an empty ledger.
func (s *Store) Load(ctx context.Context) (ledger.LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger.LoadResult{Transactions: []core.Transaction{}}, nil
	}
	if err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: open %q: %w", ledger.ErrStoreRead, s.path, err)
	}
	defer f.Close()

	res, err := Decode(f)
	if err != nil {
		return ledger.LoadResult{}, fmt.Errorf("%w: %q: %w", ledger.ErrStoreRead, s.path, err)
	}
	for _, p := range res.Problems {
		s.logger.WarnContext(ctx, "Dropping malformed ledger row",
			applog.FieldPathFile, s.path,
			applog.FieldLine, p.Line,
			applog.FieldError, p.Err)
	}
	return res, nil
}

// Save rewrites the whole file through a temp file and rename.
func (s *Store) Save(ctx context.Context, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrStoreWrite, err)
	}
	if err := writeAtomic(s.path, txs); err != nil {
		return fmt.Errorf("%w: %q: %w", ledger.ErrStoreWrite, s.path, err)
	}
	s.logger.DebugContext(ctx, "Ledger saved",
		applog.FieldPathFile, s.path,
		applog.FieldCount, len(txs))
	return nil
}

func writeAtomic(path string, txs []core.Transaction) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, txs); err != nil {
		return err
	}
	if err = tmp.Chmod(fileMode(path)); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

// fileMode keeps the permissions of an existing ledger file; new files
// get 0644.
func fileMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return 0o644
}

// Encode writes the header and one row per transaction.
func Encode(out io.Writer, txs []core.Transaction) error {
	writer := csv.NewWriter(out)

	if err := writer.Write(core.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, tx := range txs {
		if err := writer.Write(tx.ToRecord().Fields()); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Decode parses a ledger file. Columns are matched by header name; rows
// that do not form a valid transaction are dropped and reported.
func Decode(in io.Reader) (ledger.LoadResult, error) {
	res := ledger.LoadResult{Transactions: []core.Transaction{}}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return ledger.LoadResult{}, fmt.Errorf("read header: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return ledger.LoadResult{}, err
	}

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ledger.LoadResult{}, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		tx, err := core.ParseRecord(index.record(fields))
		if err != nil {
			res.Drop(line, err)
			continue
		}
		res.Transactions = append(res.Transactions, tx)
	}
	return res, nil
}

type columns map[string]int

func columnIndex(header []string) (columns, error) {
	index := make(columns, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, name := range core.RequiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ledger.ErrIncompatibleSchema, strings.Join(missing, ", "))
	}
	return index, nil
}

func (c columns) field(fields []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func (c columns) record(fields []string) core.Record {
	return core.Record{
		Date:     c.field(fields, "date"),
		Type:     c.field(fields, "type"),
		Category: c.field(fields, "category"),
		Amount:   c.field(fields, "amount"),
		Note:     c.field(fields, "note"),
	}
}
