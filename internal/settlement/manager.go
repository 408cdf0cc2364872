// Package settlement binds one buy and one sell trade into a T-bill. Every mutation
// runs in a single repository transaction and either applies completely or not at all.
package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/calc"
	"tbill-ledger-go/internal/models"
)

// Store is the persistence the manager needs.
type Store interface {
	GetTrade(ctx context.Context, ownerID, id string) (*models.Trade, error)
	UpdateTradeMatch(ctx context.Context, ownerID, id string, update models.MatchUpdate) error
	CreateSettlementRecord(ctx context.Context, ownerID string, s *models.Settlement) (string, error)
	UpdateSettlementRecord(ctx context.Context, ownerID, id string, s *models.Settlement) error
	DeleteSettlementRecord(ctx context.Context, ownerID, id string) error
	GetSettlementRecord(ctx context.Context, ownerID, id string) (*models.Settlement, error)
	ListSettlements(ctx context.Context, ownerID string) ([]models.Settlement, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Detail is a settlement together with snapshots of its two trades. Either trade
// is nil when it no longer exists.
type Detail struct {
	Settlement *models.Settlement `json:"tbill"`
	ATrade     *models.Trade      `json:"aTrade"`
	BTrade     *models.Trade      `json:"bTrade"`
}

// Manager creates, edits, inspects and deletes settlements.
type Manager struct {
	store  Store
	logger *zap.Logger
}

// NewManager creates a Manager.
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger.Named("settlement")}
}

// Create pairs trades aID and bID into a new settlement dated date.
func (m *Manager) Create(ctx context.Context, ownerID, aID, bID string, date time.Time) (*models.Settlement, error) {
	const op = "create settlement"
	if err := validateIDs(op, ownerID, aID, bID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, apperr.Validation(op, "date is required")
	}

	var created *models.Settlement
	err := m.inTx(ctx, op, func(ctx context.Context) error {
		a, b, err := m.loadPair(ctx, op, ownerID, aID, bID, "")
		if err != nil {
			return err
		}
		s, err := price(op, a, b)
		if err != nil {
			return err
		}
		s.Date = date

		id, err := m.store.CreateSettlementRecord(ctx, ownerID, s)
		if err != nil {
			return err
		}
		if err := m.bind(ctx, ownerID, id, aID, bID); err != nil {
			return err
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Settlement created",
		zap.String("owner_id", ownerID),
		zap.String("settlement_id", created.ID),
		zap.String("direction", string(created.PairingDirection)),
		zap.String("profit", created.Profit.StringFixed(calc.DefaultPrecision)),
	)
	return created, nil
}

// Update re-pairs settlement id to trades aID and bID. The old pair is released
// and the new one bound in the same transaction; if the new pair is rejected the
// old pairing stays exactly as it was. A zero date keeps the current date.
func (m *Manager) Update(ctx context.Context, ownerID, id, aID, bID string, date time.Time) (*models.Settlement, error) {
	const op = "update settlement"
	if id == "" {
		return nil, apperr.Validation(op, "settlement id is required")
	}
	if err := validateIDs(op, ownerID, aID, bID); err != nil {
		return nil, err
	}

	var updated *models.Settlement
	err := m.inTx(ctx, op, func(ctx context.Context) error {
		existing, err := m.store.GetSettlementRecord(ctx, ownerID, id)
		if err != nil {
			return err
		}

		// Everything is validated before the first write.
		a, b, err := m.loadPair(ctx, op, ownerID, aID, bID, id)
		if err != nil {
			return err
		}
		s, err := price(op, a, b)
		if err != nil {
			return err
		}
		s.ID = existing.ID
		s.OwnerID = existing.OwnerID
		s.CreatedAt = existing.CreatedAt
		s.Date = existing.Date
		if !date.IsZero() {
			s.Date = date
		}

		if err := m.unbind(ctx, ownerID, id, existing.ATradeID, existing.BTradeID); err != nil {
			return err
		}
		if err := m.store.UpdateSettlementRecord(ctx, ownerID, id, s); err != nil {
			return err
		}
		if err := m.bind(ctx, ownerID, id, aID, bID); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Settlement updated",
		zap.String("owner_id", ownerID),
		zap.String("settlement_id", id),
		zap.String("a_trade_id", aID),
		zap.String("b_trade_id", bID),
	)
	return updated, nil
}

// Detail returns settlement id and its two trades. It does not modify anything.
func (m *Manager) Detail(ctx context.Context, ownerID, id string) (*Detail, error) {
	const op = "get settlement detail"
	if ownerID == "" {
		return nil, apperr.Validation(op, "owner id is required")
	}
	if id == "" {
		return nil, apperr.Validation(op, "settlement id is required")
	}

	s, err := m.store.GetSettlementRecord(ctx, ownerID, id)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	a, err := m.optionalTrade(ctx, ownerID, s.ATradeID)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	b, err := m.optionalTrade(ctx, ownerID, s.BTradeID)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	return &Detail{Settlement: s, ATrade: a, BTrade: b}, nil
}

// Delete releases both trades of settlement id and removes it. Trades that no
// longer exist are skipped.
func (m *Manager) Delete(ctx context.Context, ownerID, id string) error {
	const op = "delete settlement"
	if ownerID == "" {
		return apperr.Validation(op, "owner id is required")
	}
	if id == "" {
		return apperr.Validation(op, "settlement id is required")
	}

	err := m.inTx(ctx, op, func(ctx context.Context) error {
		s, err := m.store.GetSettlementRecord(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if err := m.unbind(ctx, ownerID, id, s.ATradeID, s.BTradeID); err != nil {
			return err
		}
		return m.store.DeleteSettlementRecord(ctx, ownerID, id)
	})
	if err != nil {
		return err
	}

	m.logger.Info("Settlement deleted", zap.String("owner_id", ownerID), zap.String("settlement_id", id))
	return nil
}

// List returns the owner's settlements, newest first.
func (m *Manager) List(ctx context.Context, ownerID string) ([]models.Settlement, error) {
	if ownerID == "" {
		return nil, apperr.Validation("list settlements", "owner id is required")
	}
	list, err := m.store.ListSettlements(ctx, ownerID)
	if err != nil {
		return nil, apperr.Classify("list settlements", err)
	}
	return list, nil
}

// inTx runs fn in a transaction and classifies whatever comes out of it.
func (m *Manager) inTx(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := m.store.WithTransaction(ctx, fn)
	if err == nil {
		return nil
	}
	err = apperr.Classify(op, err)
	if apperr.KindOf(err) == apperr.KindTransaction {
		m.logger.Error("Settlement transaction rolled back", zap.String("op", op), zap.Error(err))
	} else {
		m.logger.Debug("Settlement rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

// loadPair reads both trades inside the transaction and checks every pairing
// invariant. Trades currently bound to self (the settlement being edited) count
// as unmatched.
func (m *Manager) loadPair(ctx context.Context, op, ownerID, aID, bID, self string) (*models.Trade, *models.Trade, error) {
	a, err := m.store.GetTrade(ctx, ownerID, aID)
	if err != nil {
		return nil, nil, err
	}
	b, err := m.store.GetTrade(ctx, ownerID, bID)
	if err != nil {
		return nil, nil, err
	}

	if !available(a, self) || !available(b, self) {
		return nil, nil, apperr.Conflict(op, "trade is already matched")
	}
	if a.StockCode != b.StockCode {
		return nil, nil, apperr.Conflict(op, "stock codes differ: %s vs %s", a.StockCode, b.StockCode)
	}
	if a.Quantity != b.Quantity {
		return nil, nil, apperr.Conflict(op, "quantities differ: %d vs %d", a.Quantity, b.Quantity)
	}
	if a.Type == b.Type {
		return nil, nil, apperr.Conflict(op, "trades must be of opposite types")
	}
	return a, b, nil
}

func available(t *models.Trade, self string) bool {
	if t.MatchStatus == models.MatchStatusUnmatched {
		return true
	}
	return self != "" && t.SettlementID != nil && *t.SettlementID == self
}

func (m *Manager) bind(ctx context.Context, ownerID, settlementID string, ids ...string) error {
	for _, id := range ids {
		if err := m.store.UpdateTradeMatch(ctx, ownerID, id, models.Bind(settlementID)); err != nil {
			return err
		}
	}
	return nil
}

// unbind releases the given trades. Missing trades are skipped, and a trade that
// meanwhile points at another settlement is left alone.
func (m *Manager) unbind(ctx context.Context, ownerID, settlementID string, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		t, err := m.optionalTrade(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if t == nil {
			m.logger.Warn("Settled trade no longer exists", zap.String("settlement_id", settlementID), zap.String("trade_id", id))
			continue
		}
		if t.SettlementID == nil || *t.SettlementID != settlementID {
			continue
		}
		if err := m.store.UpdateTradeMatch(ctx, ownerID, id, models.Unbind()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) optionalTrade(ctx context.Context, ownerID, id string) (*models.Trade, error) {
	if id == "" {
		return nil, nil
	}
	t, err := m.store.GetTrade(ctx, ownerID, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, nil
	}
	return t, err
}

func validateIDs(op, ownerID, aID, bID string) error {
	switch {
	case ownerID == "":
		return apperr.Validation(op, "owner id is required")
	case aID == "":
		return apperr.Validation(op, "aTradeId is required")
	case bID == "":
		return apperr.Validation(op, "bTradeId is required")
	case aID == bID:
		return apperr.Validation(op, "aTradeId and bTradeId must differ")
	}
	return nil
}
