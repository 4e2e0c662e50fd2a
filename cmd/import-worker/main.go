package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/mlaanderson/budget-v3/internal/amqp"
	"github.com/mlaanderson/budget-v3/internal/backend"
	"github.com/mlaanderson/budget-v3/internal/config"
	"github.com/mlaanderson/budget-v3/internal/log"
	"github.com/mlaanderson/budget-v3/internal/pool"
	"github.com/mlaanderson/budget-v3/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentWorker)
	log.SetDefault(logger)

	logger.Info("Starting import-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the import worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := backend.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize graph store", log.FieldError, err, log.FieldBackend, cfg.GraphBackend)
		os.Exit(1)
	}
	if err := store.Configure(ctx); err != nil {
		logger.Error("Failed to configure store constraints", log.FieldError, err)
		store.Close(ctx)
		os.Exit(1)
	}

	sessions, err := pool.New(ctx, store, pool.Config{Min: cfg.PoolMin, Max: cfg.PoolMax}, logger)
	if err != nil {
		logger.Error("Failed to initialize session pool", log.FieldError, err)
		store.Close(ctx)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		sessions.Drain(ctx)
		os.Exit(1)
	}
	defer amqpClient.Close()

	importWorker := worker.NewImportWorker(sessions, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return amqpClient.ConsumeImportBatches(groupCtx, importWorker.HandleImportBatch)
	})
	group.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sessions.Drain(shutdownCtx); err != nil {
		logger.Error("Pool drain error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("import-worker stopped gracefully")
}
