package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tbill-ledger-go/internal/config"
	"tbill-ledger-go/internal/database"
	"tbill-ledger-go/internal/httpapi"
	"tbill-ledger-go/internal/ledger"
	"tbill-ledger-go/internal/logger"
	"tbill-ledger-go/internal/metrics"
	"tbill-ledger-go/internal/quote"
	"tbill-ledger-go/internal/reconciler"
	"tbill-ledger-go/internal/repository"
	"tbill-ledger-go/internal/settlement"
	"tbill-ledger-go/internal/trades"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger, "tbill-ledger-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	repo := repository.New(db, log)

	// Stock lookup, with an optional Redis cache in front
	var cache quote.Cache
	if cfg.Quote.RedisURL != "" {
		redisCache, err := quote.NewRedisCache(ctx, cfg.Quote.RedisURL, time.Duration(cfg.Quote.CacheTTL)*time.Second)
		if err != nil {
			log.Warn("Quote cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			cache = redisCache
		}
	}
	resolver := quote.NewClient(cfg.Quote, cache, log)

	m := metrics.New()
	tradeService := trades.NewService(repo, resolver, cfg.Matching, log)
	dispatcher := ledger.NewDispatcher(settlement.NewManager(repo, log), tradeService, resolver, m, log)

	if cfg.Reconciler.Enabled {
		engine := reconciler.NewEngine(log, cfg.Reconciler, repo, tradeService, m)
		go engine.Run(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           httpapi.NewServer(dispatcher, m, log).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting web server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	log.Info("Server has been shut down.")
}
