package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PairingDirection records which side of a settlement was executed first.
type PairingDirection string

const (
	BuyThenSell PairingDirection = "buyThenSell"
	SellThenBuy PairingDirection = "sellThenBuy"
)

// Settlement (T-bill) binds one buy and one sell trade of equal stock and quantity
// into a realized round-trip.
type Settlement struct {
	ID               string           `gorm:"primaryKey;size:36" json:"id"`
	OwnerID          string           `gorm:"index;not null" json:"ownerId"`
	StockCode        string           `gorm:"index;not null" json:"stockCode"`
	StockName        string           `json:"stockName"`
	Market           string           `json:"market"`
	PairingDirection PairingDirection `gorm:"not null" json:"pairingDirection"`
	ATradeID         string           `gorm:"column:a_trade_id;size:36;not null" json:"aTradeId"`
	BTradeID         string           `gorm:"column:b_trade_id;size:36;not null" json:"bTradeId"`
	Quantity         int64            `gorm:"not null" json:"quantity"`
	Profit           decimal.Decimal  `gorm:"type:decimal(20,2)" json:"profit"`
	ProfitRate       decimal.Decimal  `gorm:"type:decimal(10,2)" json:"profitRate"`
	Date             time.Time        `gorm:"index" json:"date"`
	CreatedAt        time.Time        `json:"createTime"`
	UpdatedAt        time.Time        `json:"updateTime"`
}
