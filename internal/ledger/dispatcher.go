// Package ledger is the operation surface of the ledger: typed requests in,
// uniform responses out.
package ledger

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/fifo"
	"tbill-ledger-go/internal/metrics"
	"tbill-ledger-go/internal/models"
	"tbill-ledger-go/internal/quote"
	"tbill-ledger-go/internal/settlement"
	"tbill-ledger-go/internal/trades"
)

// CodeOK is the metrics label of a successful operation.
const CodeOK = "OK"

// Response is the uniform result of every operation. On failure Code carries the
// error kind and Data is nil.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// SettlementManager is the settlement workflow used by the dispatcher.
type SettlementManager interface {
	Create(ctx context.Context, ownerID, aID, bID string, date time.Time) (*models.Settlement, error)
	Update(ctx context.Context, ownerID, id, aID, bID string, date time.Time) (*models.Settlement, error)
	Detail(ctx context.Context, ownerID, id string) (*settlement.Detail, error)
	Delete(ctx context.Context, ownerID, id string) error
	List(ctx context.Context, ownerID string) ([]models.Settlement, error)
}

// TradeService is the trade bookkeeping used by the dispatcher.
type TradeService interface {
	AddTrade(ctx context.Context, ownerID string, in trades.NewTrade) (*models.Trade, error)
	DeleteTrade(ctx context.Context, ownerID, id string) error
	GetTrade(ctx context.Context, ownerID, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, ownerID string, filter models.TradeFilter) (*models.TradePage, error)
	ListUnmatched(ctx context.Context, ownerID string, filter models.TradeFilter) (*models.TradePage, error)
	MatchingCandidates(ctx context.Context, ownerID, aID string, page, pageSize int) (*models.TradePage, error)
	CheckEditable(ctx context.Context, ownerID, id string) (*trades.Editability, error)
	Reconcile(ctx context.Context, ownerID string) (*trades.ReconcileResult, error)
}

// Dispatcher validates requests and routes them to the owning component.
type Dispatcher struct {
	settlements SettlementManager
	trades      TradeService
	resolver    quote.Resolver
	metrics     *metrics.Metrics
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewDispatcher creates a Dispatcher. resolver and m may be nil.
func NewDispatcher(settlements SettlementManager, trades TradeService, resolver quote.Resolver, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		settlements: settlements,
		trades:      trades,
		resolver:    resolver,
		metrics:     m,
		validate:    newValidator(),
		logger:      logger.Named("ledger"),
	}
}

// Dispatch runs req on behalf of ownerID. It never returns a Go error: failures
// are reported through Response.Code and Response.Message.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID string, req Request) Response {
	started := time.Now()
	op := "unknown"
	if req != nil {
		op = req.operation()
	}

	data, err := d.dispatch(ctx, ownerID, op, req)

	resp := Response{Success: true, Data: data}
	code := CodeOK
	if err != nil {
		code = string(apperr.KindOf(err))
		resp = Response{Success: false, Message: err.Error(), Code: code}
		if code == string(apperr.KindTransaction) {
			d.logger.Error("Operation failed", zap.String("operation", op), zap.String("owner_id", ownerID), zap.Error(err))
		} else {
			d.logger.Debug("Operation rejected", zap.String("operation", op), zap.String("owner_id", ownerID), zap.Error(err))
		}
	}
	if d.metrics != nil {
		d.metrics.ObserveOperation(op, code, started)
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, ownerID, op string, req Request) (any, error) {
	if req == nil {
		return nil, apperr.Validation("dispatch", "request is required")
	}
	if err := validateRequest(d.validate, op, req); err != nil {
		return nil, err
	}
	if needsOwner(req) && ownerID == "" {
		return nil, apperr.Validation(op, "owner id is required")
	}

	switch r := req.(type) {
	case CreateSettlement:
		return d.settlements.Create(ctx, ownerID, r.ATradeID, r.BTradeID, r.Date.Time())
	case UpdateSettlement:
		return d.settlements.Update(ctx, ownerID, r.ID, r.ATradeID, r.BTradeID, r.Date.Time())
	case GetSettlementDetail:
		return d.settlements.Detail(ctx, ownerID, r.ID)
	case DeleteSettlement:
		if err := d.settlements.Delete(ctx, ownerID, r.ID); err != nil {
			return nil, err
		}
		return map[string]string{"id": r.ID}, nil
	case ListSettlements:
		return d.settlements.List(ctx, ownerID)
	case RecomputeTradeMatching:
		return fifo.Rebuild(r.Trades), nil
	case MatchIncremental:
		if !r.NewTrade.Type.Valid() {
			return nil, apperr.Validation(op, "newTrade.type must be buy or sell")
		}
		return fifo.MatchIncremental(r.History, r.NewTrade), nil
	case AddTrade:
		return d.trades.AddTrade(ctx, ownerID, trades.NewTrade{
			StockCode: r.StockCode,
			StockName: r.StockName,
			Market:    r.Market,
			Type:      r.Type,
			Price:     r.Price,
			Quantity:  r.Quantity,
			Date:      r.Date.Time(),
		})
	case DeleteTrade:
		if err := d.trades.DeleteTrade(ctx, ownerID, r.ID); err != nil {
			return nil, err
		}
		return map[string]string{"id": r.ID}, nil
	case GetTrade:
		return d.trades.GetTrade(ctx, ownerID, r.ID)
	case ListTrades:
		return d.trades.ListTrades(ctx, ownerID, models.TradeFilter{
			MatchStatus: models.MatchStatus(r.MatchStatus),
			StockCode:   r.StockCode,
			Type:        models.TradeType(r.Type),
			Keyword:     r.Keyword,
			Page:        r.Page,
			PageSize:    r.PageSize,
		})
	case ListUnmatchedTrades:
		return d.trades.ListUnmatched(ctx, ownerID, models.TradeFilter{
			StockCode: r.StockCode,
			Type:      models.TradeType(r.Type),
			Keyword:   r.Keyword,
			Page:      r.Page,
			PageSize:  r.PageSize,
		})
	case MatchingCandidates:
		return d.trades.MatchingCandidates(ctx, ownerID, r.ATradeID, r.Page, r.PageSize)
	case CheckTradeEditable:
		return d.trades.CheckEditable(ctx, ownerID, r.ID)
	case Reconcile:
		return d.trades.Reconcile(ctx, ownerID)
	case ResolveStock:
		if d.resolver == nil {
			return nil, apperr.NotFound(op, "stock lookup is not configured")
		}
		return d.resolver.Resolve(ctx, r.Code)
	}
	return nil, apperr.Validation(op, "unsupported request %T", req)
}

// needsOwner reports whether req reads or writes owner data.
func needsOwner(req Request) bool {
	switch req.(type) {
	case RecomputeTradeMatching, MatchIncremental, ResolveStock:
		return false
	}
	return true
}
