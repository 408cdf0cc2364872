// Package fifo computes realized profit allocations between opposite trades in
// first-in-first-out order. Every function here is pure: inputs are never mutated
// and results share no slices with them.
package fifo

import (
	"sort"

	"github.com/shopspring/decimal"

	"tbill-ledger-go/internal/calc"
	"tbill-ledger-go/internal/models"
)

// MatchResult is the outcome of matching one new trade against its history.
type MatchResult struct {
	Profit            decimal.Decimal          `json:"profit"`
	Matches           []models.MatchAllocation `json:"matches"`
	RemainingQuantity int64                    `json:"remainingQuantity"`
	// Counterparties holds updated copies of the history trades that were consumed,
	// in allocation order.
	Counterparties []models.Trade `json:"counterparties"`
}

// MatchIncremental allocates newTrade against the open opposite-type trades of the
// same stock in history, earliest date first. Trades sharing a date keep their order
// in history.
func MatchIncremental(history []models.Trade, newTrade models.Trade) MatchResult {
	result := MatchResult{
		Profit:            decimal.Zero,
		Matches:           []models.MatchAllocation{},
		RemainingQuantity: newTrade.Quantity,
		Counterparties:    []models.Trade{},
	}
	if newTrade.Quantity <= 0 {
		result.RemainingQuantity = 0
		return result
	}

	candidates := make([]models.Trade, 0, len(history))
	for _, t := range history {
		if t.StockCode != newTrade.StockCode || t.ID == newTrade.ID {
			continue
		}
		if t.Quantity <= 0 || t.RemainingQuantity <= 0 {
			continue
		}
		candidates = append(candidates, t.Clone())
	}
	sortByDate(candidates)

	remaining := newTrade.Quantity
	total := decimal.Zero
	for i := range candidates {
		if remaining == 0 {
			break
		}
		c := &candidates[i]
		if c.Type == newTrade.Type {
			continue
		}

		qty := min(remaining, c.RemainingQuantity)
		alloc := allocate(&newTrade, c, qty)

		remaining -= qty
		c.RemainingQuantity -= qty
		c.Matches = append(c.Matches, alloc)

		total = total.Add(alloc.Profit)
		result.Matches = append(result.Matches, alloc)
		result.Counterparties = append(result.Counterparties, *c)
	}

	result.Profit = calc.Round(total, calc.DefaultPrecision)
	result.RemainingQuantity = remaining
	return result
}

// AttributeProfit credits the profit of each allocation in result to its closing
// side, the later-dated of newTrade and the counterparty. newTrade closes on equal
// dates since it was recorded last. It returns newTrade's share and copies of the
// counterparties with their profit raised by theirs.
func AttributeProfit(newTrade models.Trade, result MatchResult) (decimal.Decimal, []models.Trade) {
	own := decimal.Zero
	counterparties := make([]models.Trade, len(result.Counterparties))
	for i, c := range result.Counterparties {
		counterparties[i] = c.Clone()
	}

	for _, alloc := range result.Matches {
		otherID := alloc.SellTradeID
		otherDate := alloc.SellDate
		if otherID == newTrade.ID {
			otherID = alloc.BuyTradeID
			otherDate = alloc.BuyDate
		}
		if !otherDate.After(newTrade.Date) {
			own = calc.Add(own, alloc.Profit, calc.DefaultPrecision)
			continue
		}
		for i := range counterparties {
			if counterparties[i].ID == otherID {
				counterparties[i].Profit = calc.Add(counterparties[i].Profit, alloc.Profit, calc.DefaultPrecision)
				break
			}
		}
	}
	return own, counterparties
}

// Rebuild discards every allocation in trades and derives them again from date,
// type, quantity and price alone. The returned slice is parallel to trades.
// Calling Rebuild on its own output yields the same output.
func Rebuild(trades []models.Trade) []models.Trade {
	out := make([]models.Trade, len(trades))
	for i, t := range trades {
		c := t.Clone()
		c.RemainingQuantity = max(c.Quantity, 0)
		c.Matches = []models.MatchAllocation{}
		c.Profit = decimal.Zero
		out[i] = c
	}

	// Group by stock, keeping input order inside each group so that the stable sort
	// below breaks date ties by input position.
	type side struct{ buys, sells []int }
	groups := make(map[string]*side)
	var order []string
	for i := range out {
		t := &out[i]
		if t.Quantity <= 0 || !t.Type.Valid() {
			continue
		}
		g, ok := groups[t.StockCode]
		if !ok {
			g = &side{}
			groups[t.StockCode] = g
			order = append(order, t.StockCode)
		}
		if t.Type == models.TradeTypeBuy {
			g.buys = append(g.buys, i)
		} else {
			g.sells = append(g.sells, i)
		}
	}

	for _, code := range order {
		g := groups[code]
		sortIndexesByDate(out, g.buys)
		sortIndexesByDate(out, g.sells)

		bi, si := 0, 0
		for bi < len(g.buys) && si < len(g.sells) {
			buy := &out[g.buys[bi]]
			sell := &out[g.sells[si]]

			qty := min(buy.RemainingQuantity, sell.RemainingQuantity)
			alloc := allocate(buy, sell, qty)
			buy.RemainingQuantity -= qty
			sell.RemainingQuantity -= qty
			buy.Matches = append(buy.Matches, alloc)
			sell.Matches = append(sell.Matches, alloc)

			closing := closingTrade(out, g.buys[bi], g.sells[si])
			closing.Profit = calc.Add(closing.Profit, alloc.Profit, calc.DefaultPrecision)

			if buy.RemainingQuantity == 0 {
				bi++
			}
			if sell.RemainingQuantity == 0 {
				si++
			}
		}
	}
	return out
}

// allocate builds the allocation between a and b, assigning buy/sell roles from
// their types rather than from which one is new.
func allocate(a, b *models.Trade, qty int64) models.MatchAllocation {
	buy, sell := a, b
	if a.Type == models.TradeTypeSell {
		buy, sell = b, a
	}
	return models.MatchAllocation{
		BuyTradeID:  buy.ID,
		BuyPrice:    buy.Price,
		BuyDate:     buy.Date,
		SellTradeID: sell.ID,
		SellPrice:   sell.Price,
		SellDate:    sell.Date,
		Quantity:    qty,
		Profit:      calc.Profit(buy.Price, sell.Price, qty),
	}
}

// closingTrade is the later of the two trades; on equal dates the one that appears
// later in the input closes the position.
func closingTrade(trades []models.Trade, i, j int) *models.Trade {
	a, b := &trades[i], &trades[j]
	switch {
	case a.Date.After(b.Date):
		return a
	case b.Date.After(a.Date):
		return b
	case i > j:
		return a
	default:
		return b
	}
}

func sortByDate(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Date.Before(trades[j].Date)
	})
}

func sortIndexesByDate(trades []models.Trade, idx []int) {
	sort.SliceStable(idx, func(i, j int) bool {
		return trades[idx[i]].Date.Before(trades[idx[j]].Date)
	})
}
