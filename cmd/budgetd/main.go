package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mlaanderson/budget-v3/internal/backend"
	"github.com/mlaanderson/budget-v3/internal/config"
	"github.com/mlaanderson/budget-v3/internal/log"
	"github.com/mlaanderson/budget-v3/internal/pool"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting budgetd")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := backend.NewStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize graph store", log.FieldError, err, log.FieldBackend, cfg.GraphBackend)
		os.Exit(1)
	}

	// Apply uniqueness constraints before handing out sessions.
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

	logger.Info("budgetd ready",
		log.FieldBackend, cfg.GraphBackend,
		log.FieldPoolIdle, sessions.Idle())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := sessions.Drain(shutdownCtx); err != nil {
		logger.Error("Pool drain error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("budgetd stopped gracefully")
}
