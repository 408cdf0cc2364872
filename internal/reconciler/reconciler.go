// Package reconciler periodically rebuilds the stored FIFO allocations of every
// owner so that drift from partial writes or manual edits is repaired.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tbill-ledger-go/internal/config"
	"tbill-ledger-go/internal/metrics"
	"tbill-ledger-go/internal/trades"
)

// OwnerLister lists the owners that have trades.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

// LedgerRebuilder rebuilds one owner's allocations.
type LedgerRebuilder interface {
	Reconcile(ctx context.Context, ownerID string) (*trades.ReconcileResult, error)
}

// Engine runs the reconcile loop.
type Engine struct {
	logger   *zap.Logger
	interval time.Duration
	owners   OwnerLister
	ledger   LedgerRebuilder
	metrics  *metrics.Metrics
}

// NewEngine creates a reconcile engine. m may be nil.
func NewEngine(logger *zap.Logger, cfg config.Reconciler, owners OwnerLister, ledger LedgerRebuilder, m *metrics.Metrics) *Engine {
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Engine{
		logger:   logger.Named("reconciler"),
		interval: interval,
		owners:   owners,
		ledger:   ledger,
		metrics:  m,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Starting reconcile loop", zap.Duration("interval", e.interval))
	if err := e.Sweep(ctx); err != nil {
		e.logger.Error("Sweep failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping reconcile loop...")
			return
		case <-ticker.C:
			if err := e.Sweep(ctx); err != nil {
				e.logger.Error("Sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep reconciles every owner once. A failure for one owner is logged and does
// not stop the others; the returned error reports how many failed.
func (e *Engine) Sweep(ctx context.Context) error {
	owners, err := e.owners.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("could not list owners: %w", err)
	}

	failed := 0
	for _, owner := range owners {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res, err := e.ledger.Reconcile(ctx, owner)
		if err != nil {
			failed++
			e.record("error")
			e.logger.Error("Reconcile failed", zap.String("owner_id", owner), zap.Error(err))
			continue
		}
		e.record("ok")
		e.logger.Debug("Owner reconciled",
			zap.String("owner_id", owner),
			zap.Int("trades", res.Trades),
			zap.Int("allocations", res.Allocations),
		)
	}

	e.logger.Info("Sweep finished", zap.Int("owners", len(owners)), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d owners failed to reconcile", failed, len(owners))
	}
	return nil
}

func (e *Engine) record(result string) {
	if e.metrics != nil {
		e.metrics.ReconcileRuns.WithLabelValues(result).Inc()
	}
}
