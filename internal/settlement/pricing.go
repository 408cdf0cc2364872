package settlement

import (
	"github.com/shopspring/decimal"

	"tbill-ledger-go/internal/apperr"
	"tbill-ledger-go/internal/calc"
	"tbill-ledger-go/internal/models"
)

// price derives direction, profit and profit rate for the pair a (executed first)
// and b. The rate is always relative to a's price: the buy price for buy-then-sell,
// the short-sale price for sell-then-buy.
func price(op string, a, b *models.Trade) (*models.Settlement, error) {
	if !a.Price.IsPositive() {
		return nil, apperr.Validation(op, "trade %s has a non-positive price", a.ID)
	}

	var direction models.PairingDirection
	diff := b.Price.Sub(a.Price)
	switch {
	case a.Type == models.TradeTypeBuy && b.Type == models.TradeTypeSell:
		direction = models.BuyThenSell
	case a.Type == models.TradeTypeSell && b.Type == models.TradeTypeBuy:
		direction = models.SellThenBuy
		diff = a.Price.Sub(b.Price)
	default:
		return nil, apperr.Conflict(op, "invalid trade type combination %s/%s", a.Type, b.Type)
	}

	return &models.Settlement{
		StockCode:        a.StockCode,
		StockName:        a.StockName,
		Market:           a.Market,
		PairingDirection: direction,
		ATradeID:         a.ID,
		BTradeID:         b.ID,
		Quantity:         a.Quantity,
		Profit:           calc.Mul(diff, decimal.NewFromInt(a.Quantity), calc.DefaultPrecision),
		ProfitRate:       calc.Percent(diff, a.Price, calc.DefaultPrecision),
	}, nil
}
