// Package calc holds the fixed-precision helpers used for all money math.
package calc

import "github.com/shopspring/decimal"

// DefaultPrecision is the number of decimal places kept for profits and rates.
const DefaultPrecision int32 = 2

var hundred = decimal.NewFromInt(100)

// Add returns a+b rounded to precision places.
func Add(a, b decimal.Decimal, precision int32) decimal.Decimal {
	return Round(a.Add(b), precision)
}

// Sub returns a-b rounded to precision places.
func Sub(a, b decimal.Decimal, precision int32) decimal.Decimal {
	return Round(a.Sub(b), precision)
}

// Mul returns a*b rounded to precision places.
func Mul(a, b decimal.Decimal, precision int32) decimal.Decimal {
	return Round(a.Mul(b), precision)
}

// Div returns a/b rounded to precision places.
// Like decimal.Div it panics when b is zero; callers guard the divisor.
func Div(a, b decimal.Decimal, precision int32) decimal.Decimal {
	// Keep enough intermediate digits so the final rounding is the only one.
	q := a.DivRound(b, precision+8)
	return Round(q, precision)
}

// Round rounds d half away from zero to precision places.
func Round(d decimal.Decimal, precision int32) decimal.Decimal {
	return d.Round(precision)
}

// Percent returns part/base*100 rounded to precision places.
func Percent(part, base decimal.Decimal, precision int32) decimal.Decimal {
	return Round(part.Mul(hundred).DivRound(base, precision+8), precision)
}

// Profit is (sell-buy)*quantity rounded to DefaultPrecision.
func Profit(buyPrice, sellPrice decimal.Decimal, quantity int64) decimal.Decimal {
	return Mul(sellPrice.Sub(buyPrice), decimal.NewFromInt(quantity), DefaultPrecision)
}
