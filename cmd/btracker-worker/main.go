// Command btracker-worker mirrors transaction events into the SQLite
// database so the ledger can be queried with SQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"btracker/internal/amqp"
	"btracker/internal/cli"
	"btracker/internal/config"
	applog "btracker/internal/log"
	"btracker/internal/storage"
	"btracker/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("btracker-worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	if !cfg.AMQPEnabled() {
		return errors.New("AMQP_URL is required for the worker")
	}

	logger.Info("Starting btracker-worker", "db_path", cfg.SQLiteDBPath, "queue", cfg.AMQPQueue)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		return fmt.Errorf("initialize SQLite repository: %w", err)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 5, logger)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirrorWorker(repo, logger)
	if err := amqpClient.ConsumeTransactionAdded(ctx, mirror.HandleTransactionAdded); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume messages: %w", err)
	}
	return nil
}
