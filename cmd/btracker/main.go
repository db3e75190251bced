package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"btracker/internal/amqp"
	"btracker/internal/backend"
	"btracker/internal/cache"
	"btracker/internal/cli"
	"btracker/internal/config"
	"btracker/internal/core"
	apphttp "btracker/internal/http"
	"btracker/internal/ledger"
	applog "btracker/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	if err := run(cfg, logger); err != nil {
		logger.Error("btracker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	store, err := backend.NewFactory(logger).CreateStore(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Store cleanup failed", applog.FieldError, err)
		}
	}()

	reports := cache.NewLRUCache[core.Dashboard](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(reports)
	cacheManager.StartCleanup(cfg.CacheTTL)
	defer cacheManager.Stop()

	opts := []ledger.Option{
		ledger.WithLogger(logger),
		ledger.WithCache(reports),
	}

	// AMQP is optional; the ledger works without it
	if cfg.AMQPEnabled() {
		amqpClient, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 3, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, ledger.WithPublisher(amqpClient))
			logger.Info("Initialized AMQP client",
				"exchange", cfg.AMQPExchange,
				"queue", cfg.AMQPQueue)
		}
	}

	svc := ledger.New(store.Store, opts...)
	res, err := svc.Load(ctx)
	if err != nil {
		return err
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger, apphttp.WithWriteLimit(cfg.WriteLimit))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting btracker server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			applog.FieldCount, len(res.Transactions))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
