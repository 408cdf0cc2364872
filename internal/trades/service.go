// Package trades records trades and keeps their FIFO allocations current.
package trades

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/config"
	"tbill-ledger-go/internal/fifo"
	"tbill-ledger-go/internal/models"
	"tbill-ledger-go/internal/quote"
)

const (
	defaultPageSize          = 20
	defaultCandidatePageSize = 30
	maxPageSize              = 100
)

// Store is the persistence the service needs.
type Store interface {
	GetTrade(ctx context.Context, ownerID, id string) (*models.Trade, error)
	GetTradesByStock(ctx context.Context, ownerID, stockCode, excludeID string) ([]models.Trade, error)
	CreateTrade(ctx context.Context, ownerID string, t *models.Trade) error
	DeleteTrade(ctx context.Context, ownerID, id string) error
	ReplaceAllocations(ctx context.Context, ownerID string, trades []models.Trade) error
	ListTrades(ctx context.Context, ownerID string, filter models.TradeFilter) ([]models.Trade, int64, error)
	ListAllTrades(ctx context.Context, ownerID string) ([]models.Trade, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// NewTrade is the input for recording a trade.
type NewTrade struct {
	StockCode string
	StockName string
	Market    string
	Type      models.TradeType
	Price     decimal.Decimal
	Quantity  int64
	Date      time.Time
}

// Editability tells whether a trade may still be changed.
type Editability struct {
	Editable bool   `json:"editable"`
	Reason   string `json:"reason,omitempty"`
}

// ReconcileResult summarises a full rebuild of an owner's allocations.
type ReconcileResult struct {
	Trades      int `json:"trades"`
	Allocations int `json:"allocations"`
}

// Service implements the trade operations.
type Service struct {
	store          Store
	resolver       quote.Resolver
	excludeSettled bool
	logger         *zap.Logger
}

// NewService creates a Service. resolver may be nil, in which case only the market
// is derived from the stock code.
func NewService(store Store, resolver quote.Resolver, cfg config.Matching, logger *zap.Logger) *Service {
	return &Service{
		store:          store,
		resolver:       resolver,
		excludeSettled: cfg.ExcludeSettled,
		logger:         logger.Named("trades"),
	}
}

// AddTrade records a trade and matches it against the open trades of the same
// stock. The new trade and every counterparty it consumed are written in one
// transaction.
func (s *Service) AddTrade(ctx context.Context, ownerID string, in NewTrade) (*models.Trade, error) {
	const op = "add trade"
	if err := validateNewTrade(op, ownerID, &in); err != nil {
		return nil, err
	}
	s.describe(ctx, &in)

	trade := &models.Trade{
		StockCode:         in.StockCode,
		StockName:         in.StockName,
		Market:            in.Market,
		Type:              in.Type,
		Price:             in.Price,
		Quantity:          in.Quantity,
		Date:              in.Date,
		MatchStatus:       models.MatchStatusUnmatched,
		RemainingQuantity: in.Quantity,
		Matches:           []models.MatchAllocation{},
		Profit:            decimal.Zero,
	}

	var result fifo.MatchResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.CreateTrade(ctx, ownerID, trade); err != nil {
			return err
		}
		history, err := s.store.GetTradesByStock(ctx, ownerID, trade.StockCode, trade.ID)
		if err != nil {
			return err
		}

		result = fifo.MatchIncremental(s.candidates(history), *trade)
		own, counterparties := fifo.AttributeProfit(*trade, result)
		trade.RemainingQuantity = result.RemainingQuantity
		trade.Matches = result.Matches
		trade.Profit = own

		touched := append([]models.Trade{*trade}, counterparties...)
		return s.store.ReplaceAllocations(ctx, ownerID, touched)
	})
	if err != nil {
		return nil, apperr.Classify(op, err)
	}

	s.logger.Info("Trade added",
		zap.String("owner_id", ownerID),
		zap.String("trade_id", trade.ID),
		zap.String("stock_code", trade.StockCode),
		zap.String("type", string(trade.Type)),
		zap.Int("allocations", len(result.Matches)),
		zap.String("realized_profit", result.Profit.StringFixed(2)),
	)
	return trade, nil
}

// describe fills in the stock name and market when the caller left them empty.
// A failed lookup only costs the name.
func (s *Service) describe(ctx context.Context, in *NewTrade) {
	if in.StockName != "" && in.Market != "" {
		return
	}
	if s.resolver != nil {
		stock, err := s.resolver.Resolve(ctx, in.StockCode)
		if err == nil {
			if in.StockName == "" {
				in.StockName = stock.Name
			}
			if in.Market == "" {
				in.Market = stock.Market
			}
			return
		}
		s.logger.Warn("Stock lookup failed", zap.String("stock_code", in.StockCode), zap.Error(err))
	}
	if in.Market == "" {
		if sym, err := quote.DetectMarket(in.StockCode); err == nil {
			in.Market = sym.Market
		}
	}
}

// DeleteTrade removes an unmatched trade and rebuilds the allocations of its stock.
func (s *Service) DeleteTrade(ctx context.Context, ownerID, id string) error {
	const op = "delete trade"
	if err := requireIDs(op, ownerID, id); err != nil {
		return err
	}

	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		t, err := s.store.GetTrade(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if t.IsMatched() {
			return apperr.Conflict(op, "trade %s is bound to a settlement", id)
		}
		if err := s.store.DeleteTrade(ctx, ownerID, id); err != nil {
			return err
		}
		rest, err := s.store.GetTradesByStock(ctx, ownerID, t.StockCode, "")
		if err != nil {
			return err
		}
		_, err = s.rebuild(ctx, ownerID, rest)
		return err
	})
	if err != nil {
		return apperr.Classify(op, err)
	}

	s.logger.Info("Trade deleted", zap.String("owner_id", ownerID), zap.String("trade_id", id))
	return nil
}

// GetTrade returns one trade.
func (s *Service) GetTrade(ctx context.Context, ownerID, id string) (*models.Trade, error) {
	const op = "get trade"
	if err := requireIDs(op, ownerID, id); err != nil {
		return nil, err
	}
	t, err := s.store.GetTrade(ctx, ownerID, id)
	return t, apperr.Classify(op, err)
}

// ListTrades returns one page of trades, newest first.
func (s *Service) ListTrades(ctx context.Context, ownerID string, filter models.TradeFilter) (*models.TradePage, error) {
	const op = "list trades"
	if ownerID == "" {
		return nil, apperr.Validation(op, "owner id is required")
	}
	return s.page(ctx, op, ownerID, filter, defaultPageSize)
}

func (s *Service) page(ctx context.Context, op, ownerID string, filter models.TradeFilter, defaultSize int) (*models.TradePage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	list, total, err := s.store.ListTrades(ctx, ownerID, filter)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	return &models.TradePage{
		Trades: list,
		Pagination: models.Pagination{
			Page:     filter.Page,
			PageSize: filter.PageSize,
			Total:    total,
			HasMore:  int64(filter.Offset()+len(list)) < total,
		},
	}, nil
}

// ListUnmatched returns one page of trades not bound to any settlement.
func (s *Service) ListUnmatched(ctx context.Context, ownerID string, filter models.TradeFilter) (*models.TradePage, error) {
	filter.MatchStatus = models.MatchStatusUnmatched
	return s.ListTrades(ctx, ownerID, filter)
}

// MatchingCandidates returns one page of the trades that could be paired with
// trade aID into a settlement: unmatched, same stock and quantity, opposite type.
func (s *Service) MatchingCandidates(ctx context.Context, ownerID, aID string, page, pageSize int) (*models.TradePage, error) {
	const op = "matching candidates"
	if err := requireIDs(op, ownerID, aID); err != nil {
		return nil, err
	}
	a, err := s.store.GetTrade(ctx, ownerID, aID)
	if err != nil {
		return nil, apperr.Classify(op, err)
	}
	if a.IsMatched() {
		return nil, apperr.Conflict(op, "trade %s is already matched", aID)
	}

	return s.page(ctx, op, ownerID, models.TradeFilter{
		MatchStatus: models.MatchStatusUnmatched,
		StockCode:   a.StockCode,
		Type:        a.Type.Opposite(),
		Quantity:    a.Quantity,
		ExcludeID:   a.ID,
		Page:        page,
		PageSize:    pageSize,
	}, defaultCandidatePageSize)
}

// CheckEditable reports whether trade id can still be edited or deleted.
func (s *Service) CheckEditable(ctx context.Context, ownerID, id string) (*Editability, error) {
	t, err := s.GetTrade(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if t.IsMatched() {
		return &Editability{Editable: false, Reason: "trade is bound to a settlement"}, nil
	}
	return &Editability{Editable: true}, nil
}

// Reconcile discards and regenerates every FIFO allocation of the owner.
func (s *Service) Reconcile(ctx context.Context, ownerID string) (*ReconcileResult, error) {
	const op = "reconcile"
	if ownerID == "" {
		return nil, apperr.Validation(op, "owner id is required")
	}

	var res *ReconcileResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context) error {
		all, err := s.store.ListAllTrades(ctx, ownerID)
		if err != nil {
			return err
		}
		res, err = s.rebuild(ctx, ownerID, all)
		return err
	})
	if err != nil {
		return nil, apperr.Classify(op, err)
	}

	s.logger.Info("Allocations rebuilt",
		zap.String("owner_id", ownerID),
		zap.Int("trades", res.Trades),
		zap.Int("allocations", res.Allocations),
	)
	return res, nil
}

// rebuild recomputes allocations over the candidate subset of trades and writes
// them back. Settled trades excluded from candidacy are reset.
func (s *Service) rebuild(ctx context.Context, ownerID string, trades []models.Trade) (*ReconcileResult, error) {
	candidates := s.candidates(trades)
	rebuilt := fifo.Rebuild(candidates)

	res := &ReconcileResult{Trades: len(rebuilt)}
	for _, t := range rebuilt {
		if t.Type == models.TradeTypeBuy {
			res.Allocations += len(t.Matches)
		}
	}

	if len(candidates) < len(trades) {
		for _, t := range trades {
			if s.excludeSettled && t.IsMatched() {
				rebuilt = append(rebuilt, reset(t))
			}
		}
	}
	if err := s.store.ReplaceAllocations(ctx, ownerID, rebuilt); err != nil {
		return nil, err
	}
	return res, nil
}

// candidates returns the trades FIFO matching may use.
func (s *Service) candidates(trades []models.Trade) []models.Trade {
	if !s.excludeSettled {
		return trades
	}
	out := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if !t.IsMatched() {
			out = append(out, t)
		}
	}
	return out
}

func reset(t models.Trade) models.Trade {
	t.RemainingQuantity = t.Quantity
	t.Matches = []models.MatchAllocation{}
	t.Profit = decimal.Zero
	return t
}

func validateNewTrade(op, ownerID string, in *NewTrade) error {
	in.StockCode = strings.TrimSpace(in.StockCode)
	in.StockName = strings.TrimSpace(in.StockName)
	switch {
	case ownerID == "":
		return apperr.Validation(op, "owner id is required")
	case in.StockCode == "":
		return apperr.Validation(op, "stockCode is required")
	case !in.Type.Valid():
		return apperr.Validation(op, "type must be buy or sell, got %q", in.Type)
	case !in.Price.IsPositive():
		return apperr.Validation(op, "price must be positive")
	case in.Quantity <= 0:
		return apperr.Validation(op, "quantity must be positive")
	case in.Date.IsZero():
		return apperr.Validation(op, "date is required")
	}
	return nil
}

func requireIDs(op, ownerID, id string) error {
	if ownerID == "" {
		return apperr.Validation(op, "owner id is required")
	}
	if id == "" {
		return apperr.Validation(op, "trade id is required")
	}
	return nil
}
