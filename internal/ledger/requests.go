package ledger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tbill-ledger-go/internal/models"
)

// Request is one of the operations understood by Dispatcher. The set is closed:
// only the types in this file implement it.
type Request interface {
	operation() string
}

// Date is a calendar date accepted as "2006-01-02" or as an RFC 3339 timestamp.
type Date time.Time

// Time returns d as a time.Time.
func (d Date) Time() time.Time { return time.Time(d) }

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*d = Date{}
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = Date(t)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format(time.DateOnly))
}

// CreateSettlement pairs two trades into a new settlement.
type CreateSettlement struct {
	ATradeID string `json:"aTradeId" validate:"required"`
	BTradeID string `json:"bTradeId" validate:"required,nefield=ATradeID"`
	Date     Date   `json:"date" validate:"required"`
}

// UpdateSettlement re-pairs an existing settlement. A missing date keeps the
// current one.
type UpdateSettlement struct {
	ID       string `json:"id" validate:"required"`
	ATradeID string `json:"aTradeId" validate:"required"`
	BTradeID string `json:"bTradeId" validate:"required,nefield=ATradeID"`
	Date     Date   `json:"date"`
}

// GetSettlementDetail loads a settlement with both of its trades.
type GetSettlementDetail struct {
	ID string `json:"id" validate:"required"`
}

// DeleteSettlement releases both trades and removes the settlement.
type DeleteSettlement struct {
	ID string `json:"id" validate:"required"`
}

// ListSettlements lists the owner's settlements.
type ListSettlements struct{}

// RecomputeTradeMatching rebuilds the FIFO allocations of the given trades
// without touching storage.
type RecomputeTradeMatching struct {
	Trades []models.Trade `json:"trades"`
}

// MatchIncremental matches one trade against a history without touching storage.
type MatchIncremental struct {
	History  []models.Trade `json:"history"`
	NewTrade models.Trade   `json:"newTrade"`
}

// AddTrade records a trade and runs incremental matching for it.
type AddTrade struct {
	StockCode string           `json:"stockCode" validate:"required,max=32"`
	StockName string           `json:"stockName" validate:"max=64"`
	Market    string           `json:"market" validate:"omitempty,oneof=sh sz hk us"`
	Type      models.TradeType `json:"type" validate:"required,oneof=buy sell"`
	Price     decimal.Decimal  `json:"price"`
	Quantity  int64            `json:"quantity" validate:"gt=0"`
	Date      Date             `json:"date" validate:"required"`
}

// DeleteTrade removes an unmatched trade.
type DeleteTrade struct {
	ID string `json:"id" validate:"required"`
}

// GetTrade loads one trade.
type GetTrade struct {
	ID string `json:"id" validate:"required"`
}

// ListTrades pages through trades.
type ListTrades struct {
	MatchStatus string `json:"matchStatus" validate:"omitempty,oneof=all matched unmatched"`
	StockCode   string `json:"stockCode"`
	Type        string `json:"type" validate:"omitempty,oneof=all buy sell"`
	Keyword     string `json:"keyword" validate:"max=64"`
	Page        int    `json:"page" validate:"gte=0"`
	PageSize    int    `json:"pageSize" validate:"gte=0,lte=100"`
}

// ListUnmatchedTrades pages through trades not bound to a settlement.
type ListUnmatchedTrades struct {
	StockCode string `json:"stockCode"`
	Type      string `json:"type" validate:"omitempty,oneof=all buy sell"`
	Keyword   string `json:"keyword" validate:"max=64"`
	Page      int    `json:"page" validate:"gte=0"`
	PageSize  int    `json:"pageSize" validate:"gte=0,lte=100"`
}

// MatchingCandidates pages through the trades that could settle against ATradeID.
type MatchingCandidates struct {
	ATradeID string `json:"aTradeId" validate:"required"`
	Page     int    `json:"page" validate:"gte=0"`
	PageSize int    `json:"pageSize" validate:"gte=0,lte=100"`
}

// CheckTradeEditable tells whether a trade can still be changed.
type CheckTradeEditable struct {
	ID string `json:"id" validate:"required"`
}

// Reconcile rebuilds every stored FIFO allocation of the owner.
type Reconcile struct{}

// ResolveStock looks up the name and market of a stock code.
type ResolveStock struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (CreateSettlement) operation() string       { return "createSettlement" }
func (UpdateSettlement) operation() string       { return "updateSettlement" }
func (GetSettlementDetail) operation() string    { return "getSettlementDetail" }
func (DeleteSettlement) operation() string       { return "deleteSettlement" }
func (ListSettlements) operation() string        { return "listSettlements" }
func (RecomputeTradeMatching) operation() string { return "recomputeTradeMatching" }
func (MatchIncremental) operation() string       { return "matchIncremental" }
func (AddTrade) operation() string               { return "addTrade" }
func (DeleteTrade) operation() string            { return "deleteTrade" }
func (GetTrade) operation() string               { return "getTrade" }
func (ListTrades) operation() string             { return "listTrades" }
func (ListUnmatchedTrades) operation() string    { return "listUnmatchedTrades" }
func (MatchingCandidates) operation() string     { return "matchingCandidates" }
func (CheckTradeEditable) operation() string     { return "checkTradeEditable" }
func (Reconcile) operation() string              { return "reconcile" }
func (ResolveStock) operation() string           { return "resolveStock" }
