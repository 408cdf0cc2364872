package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tbill-ledger-go/internal/config"
	"tbill-ledger-go/internal/database"
	"tbill-ledger-go/internal/logger"
	"tbill-ledger-go/internal/metrics"
	"tbill-ledger-go/internal/reconciler"
	"tbill-ledger-go/internal/repository"
	"tbill-ledger-go/internal/trades"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger, "tbill-ledger-reconciler")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := repository.New(db, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Stock names are not needed for rebuilding allocations.
	service := trades.NewService(repo, nil, cfg.Matching, log)
	engine := reconciler.NewEngine(log, cfg.Reconciler, repo, service, metrics.New())
	engine.Run(ctx)

	log.Info("Reconciler has been shut down.")
}
