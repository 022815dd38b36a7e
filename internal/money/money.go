package money

import (
	"github.com/shopspring/decimal"
)

// Amounts are persisted as int64 minor units (pence). Conversions happen only at the edges.

func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// FromDecimal rounds half away from zero to two places.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(2)
}

// BasisPoints returns bps/10000 of amount, rounded to the nearest minor unit.
func BasisPoints(amount int64, bps int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}
