package backend

import (
	"context"
	"fmt"

	applog "btracker/internal/log"
	"btracker/internal/storage"
	"btracker/internal/storage/csvstore"
	"btracker/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateStore implements Factory.CreateStore
func (f *DefaultFactory) CreateStore(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case CSVBackend:
		return f.createCSVStore(ctx, config)
	case SQLiteBackend:
		return f.createSQLiteStore(ctx, config)
	case MemoryBackend:
		return f.createMemoryStore(ctx)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createCSVStore(ctx context.Context, config Config) (*Result, error) {
	store := csvstore.New(config.LedgerFile, f.logger)

	f.logger.InfoContext(ctx, "Initialized CSV backend", applog.FieldPathFile, config.LedgerFile)

	return &Result{Store: store}, nil
}

func (f *DefaultFactory) createSQLiteStore(ctx context.Context, config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &Result{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryStore(ctx context.Context) (*Result, error) {
	f.logger.InfoContext(ctx, "Initialized memory backend, nothing will be persisted")

	return &Result{Store: memory.New()}, nil
}

var _ Factory = (*DefaultFactory)(nil)
