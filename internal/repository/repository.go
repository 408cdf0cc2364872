// Package repository persists trades and settlements with gorm. Every query is
// scoped to an explicit owner id.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/models"
)

type txKey struct{}

// Repository is the gorm-backed trade and settlement store.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a Repository on top of db.
func New(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("repository")}
}

// conn returns the transaction bound to ctx, or the root handle.
func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// WithTransaction runs fn in a single database transaction. Repository calls made
// with the context passed to fn join that transaction. A nested call joins the
// outer transaction instead of opening a new one. The transaction commits when fn
// returns nil and rolls back otherwise.
func (r *Repository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// forUpdate adds a row lock to q when it runs inside a transaction. SQLite has no
// row locks; its writers are serialised when the transaction begins.
func forUpdate(ctx context.Context, q *gorm.DB) *gorm.DB {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); !ok {
		return q
	}
	if q.Dialector.Name() == "sqlite" {
		return q
	}
	return q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// GetTrade loads one trade owned by ownerID.
func (r *Repository) GetTrade(ctx context.Context, ownerID, id string) (*models.Trade, error) {
	var t models.Trade
	err := r.conn(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("get trade", "trade %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", id, err)
	}
	return &t, nil
}

// GetTradesByStock returns the owner's trades in stockCode, oldest first. Trades on
// the same date come back in creation order. Inside a transaction the rows stay
// locked until it ends, so concurrent matching waits for fresh remaining quantities.
func (r *Repository) GetTradesByStock(ctx context.Context, ownerID, stockCode, excludeID string) ([]models.Trade, error) {
	q := forUpdate(ctx, r.conn(ctx)).Where("owner_id = ? AND stock_code = ?", ownerID, stockCode)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var trades []models.Trade
	if err := q.Order("date ASC, created_at ASC, id ASC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to get trades for stock %s: %w", stockCode, err)
	}
	return trades, nil
}

// UpdateTradeMatch sets the match status and settlement link of a trade. When
// update.Expect is set the write only applies to a row in that status, so two
// transactions racing for the same trade cannot both bind it.
func (r *Repository) UpdateTradeMatch(ctx context.Context, ownerID, id string, update models.MatchUpdate) error {
	q := r.conn(ctx).Model(&models.Trade{}).Where("id = ? AND owner_id = ?", id, ownerID)
	if update.Expect != "" {
		q = q.Where("match_status = ?", update.Expect)
	}
	res := q.Updates(map[string]any{
		"match_status":  update.Status,
		"settlement_id": update.SettlementID,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update match state of trade %s: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.conn(ctx).Model(&models.Trade{}).Where("id = ? AND owner_id = ?", id, ownerID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check trade %s: %w", id, err)
	}
	if count == 0 {
		return apperr.NotFound("update trade match", "trade %s does not exist", id)
	}
	return apperr.Conflict("update trade match", "trade %s is no longer %s", id, update.Expect)
}

// CreateTrade inserts t for ownerID, assigning an id when t has none.
func (r *Repository) CreateTrade(ctx context.Context, ownerID string, t *models.Trade) error {
	if t.ID == "" {
		t.ID = newID()
	}
	t.OwnerID = ownerID
	if err := r.conn(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// DeleteTrade removes a trade.
func (r *Repository) DeleteTrade(ctx context.Context, ownerID, id string) error {
	res := r.conn(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Trade{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete trade %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("delete trade", "trade %s does not exist", id)
	}
	return nil
}

// ReplaceAllocations writes the FIFO state (remaining quantity, allocations,
// realized profit) of every given trade in one transaction.
func (r *Repository) ReplaceAllocations(ctx context.Context, ownerID string, trades []models.Trade) error {
	return r.WithTransaction(ctx, func(ctx context.Context) error {
		now := time.Now()
		for i := range trades {
			t := &trades[i]
			matches := t.Matches
			if matches == nil {
				matches = []models.MatchAllocation{}
			}
			res := r.conn(ctx).Model(&models.Trade{}).
				Where("id = ? AND owner_id = ?", t.ID, ownerID).
				Select("remaining_quantity", "matches", "profit", "updated_at").
				Updates(&models.Trade{
					RemainingQuantity: t.RemainingQuantity,
					Matches:           matches,
					Profit:            t.Profit,
					UpdatedAt:         now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to write allocations of trade %s: %w", t.ID, res.Error)
			}
			if res.RowsAffected == 0 {
				return apperr.NotFound("replace allocations", "trade %s does not exist", t.ID)
			}
		}
		return nil
	})
}

// ListTrades returns one page of the owner's trades, newest first, and the total
// number of trades matching the filter.
func (r *Repository) ListTrades(ctx context.Context, ownerID string, filter models.TradeFilter) ([]models.Trade, int64, error) {
	q := r.filtered(ctx, ownerID, filter)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trades: %w", err)
	}

	list := q.Session(&gorm.Session{}).Order("date DESC, created_at DESC, id DESC")
	if filter.PageSize > 0 {
		list = list.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	var trades []models.Trade
	if err := list.Find(&trades).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, total, nil
}

func (r *Repository) filtered(ctx context.Context, ownerID string, f models.TradeFilter) *gorm.DB {
	q := r.conn(ctx).Model(&models.Trade{}).Where("owner_id = ?", ownerID)
	if f.MatchStatus != "" && f.MatchStatus != "all" {
		q = q.Where("match_status = ?", f.MatchStatus)
	}
	if f.StockCode != "" && f.StockCode != "all" {
		q = q.Where("stock_code = ?", f.StockCode)
	}
	if f.Type != "" && f.Type != "all" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Quantity > 0 {
		q = q.Where("quantity = ?", f.Quantity)
	}
	if f.ExcludeID != "" {
		q = q.Where("id <> ?", f.ExcludeID)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		q = q.Where("(LOWER(stock_code) LIKE ? OR LOWER(stock_name) LIKE ?)", like, like)
	}
	return q
}

// ListAllTrades returns every trade of the owner, oldest first.
func (r *Repository) ListAllTrades(ctx context.Context, ownerID string) ([]models.Trade, error) {
	var trades []models.Trade
	if err := r.conn(ctx).Where("owner_id = ?", ownerID).Order("date ASC, created_at ASC, id ASC").Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// ListOwners returns the distinct owners that have at least one trade.
func (r *Repository) ListOwners(ctx context.Context) ([]string, error) {
	var owners []string
	if err := r.conn(ctx).Model(&models.Trade{}).Distinct().Order("owner_id").Pluck("owner_id", &owners).Error; err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return owners, nil
}
