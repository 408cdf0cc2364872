package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/models"
)

// CreateSettlementRecord inserts s for ownerID and returns its id.
func (r *Repository) CreateSettlementRecord(ctx context.Context, ownerID string, s *models.Settlement) (string, error) {
	if s.ID == "" {
		s.ID = newID()
	}
	s.OwnerID = ownerID
	if err := r.conn(ctx).Create(s).Error; err != nil {
		return "", fmt.Errorf("failed to create settlement: %w", err)
	}
	return s.ID, nil
}

// UpdateSettlementRecord rewrites the pairing fields of settlement id in place.
func (r *Repository) UpdateSettlementRecord(ctx context.Context, ownerID, id string, s *models.Settlement) error {
	res := r.conn(ctx).Model(&models.Settlement{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]any{
			"stock_code":        s.StockCode,
			"stock_name":        s.StockName,
			"market":            s.Market,
			"pairing_direction": s.PairingDirection,
			"a_trade_id":        s.ATradeID,
			"b_trade_id":        s.BTradeID,
			"quantity":          s.Quantity,
			"profit":            s.Profit,
			"profit_rate":       s.ProfitRate,
			"date":              s.Date,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update settlement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("update settlement", "settlement %s does not exist", id)
	}
	return nil
}

// DeleteSettlementRecord removes settlement id. Deleting a missing record is not an error.
func (r *Repository) DeleteSettlementRecord(ctx context.Context, ownerID, id string) error {
	if err := r.conn(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Settlement{}).Error; err != nil {
		return fmt.Errorf("failed to delete settlement %s: %w", id, err)
	}
	return nil
}

// GetSettlementRecord loads one settlement owned by ownerID.
func (r *Repository) GetSettlementRecord(ctx context.Context, ownerID, id string) (*models.Settlement, error) {
	var s models.Settlement
	err := r.conn(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("get settlement", "settlement %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement %s: %w", id, err)
	}
	return &s, nil
}

// ListSettlements returns the owner's settlements, newest first.
func (r *Repository) ListSettlements(ctx context.Context, ownerID string) ([]models.Settlement, error) {
	var list []models.Settlement
	if err := r.conn(ctx).Where("owner_id = ?", ownerID).Order("date DESC, created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return list, nil
}
