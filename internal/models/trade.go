package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeType is the side of a trade.
type TradeType string

const (
	TradeTypeBuy  TradeType = "buy"
	TradeTypeSell TradeType = "sell"
)

// Opposite returns the other side.
func (t TradeType) Opposite() TradeType {
	if t == TradeTypeBuy {
		return TradeTypeSell
	}
	return TradeTypeBuy
}

// Valid reports whether t is buy or sell.
func (t TradeType) Valid() bool {
	return t == TradeTypeBuy || t == TradeTypeSell
}

// MatchStatus tells whether a trade is bound into a settlement.
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMatched   MatchStatus = "matched"
)

// Trade represents a single buy or sell execution record.
type Trade struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	OwnerID           string            `gorm:"index:idx_owner_stock;not null" json:"ownerId"`
	StockCode         string            `gorm:"index:idx_owner_stock;not null" json:"stockCode"`
	StockName         string            `json:"stockName"`
	Market            string            `json:"market"`
	Type              TradeType         `gorm:"not null" json:"type"`
	Price             decimal.Decimal   `gorm:"type:decimal(20,6);not null" json:"price"`
	Quantity          int64             `gorm:"not null" json:"quantity"`
	Date              time.Time         `gorm:"index;not null" json:"date"`
	MatchStatus       MatchStatus       `gorm:"index;not null;default:unmatched" json:"matchStatus"`
	SettlementID      *string           `gorm:"index;size:36" json:"settlementId,omitempty"`
	RemainingQuantity int64             `gorm:"not null" json:"remainingQuantity"`
	Matches           []MatchAllocation `gorm:"serializer:json" json:"matches"`
	Profit            decimal.Decimal   `gorm:"type:decimal(20,2)" json:"profit"`
	CreatedAt         time.Time         `json:"createTime"`
	UpdatedAt         time.Time         `json:"updateTime"`
}

// IsMatched reports whether the trade is bound into a settlement.
func (t *Trade) IsMatched() bool {
	return t.MatchStatus == MatchStatusMatched
}

// Clone returns a copy that shares no mutable state with t.
func (t Trade) Clone() Trade {
	c := t
	if t.Matches != nil {
		c.Matches = make([]MatchAllocation, len(t.Matches))
		copy(c.Matches, t.Matches)
	}
	if t.SettlementID != nil {
		id := *t.SettlementID
		c.SettlementID = &id
	}
	return c
}

// AllocatedQuantity sums the quantity of every allocation touching the trade.
func (t *Trade) AllocatedQuantity() int64 {
	var sum int64
	for _, m := range t.Matches {
		sum += m.Quantity
	}
	return sum
}

// MatchAllocation records a FIFO-matched quantity between one buy and one sell.
type MatchAllocation struct {
	BuyTradeID  string          `json:"buyTradeId"`
	BuyPrice    decimal.Decimal `json:"buyPrice"`
	BuyDate     time.Time       `json:"buyDate"`
	SellTradeID string          `json:"sellTradeId"`
	SellPrice   decimal.Decimal `json:"sellPrice"`
	SellDate    time.Time       `json:"sellDate"`
	Quantity    int64           `json:"quantity"`
	Profit      decimal.Decimal `json:"profit"`
}
