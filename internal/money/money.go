// Package money provides exact decimal arithmetic for currency amounts.
// Amounts are held as shopspring decimals so no money path ever touches
// binary floating point; the gateway boundary is the only place values
// are converted to integer minor units.
package money

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the rounding slack allowed when comparing two currency
// totals that were computed through different paths.
var Tolerance = decimal.RequireFromString("0.01")

// Zero is the canonical zero amount.
var Zero = decimal.Zero

// FromMajor parses a major-unit string like "1250.50".
func FromMajor(value string) (decimal.Decimal, error) {
	return decimal.NewFromString(value)
}

// FromMinor converts integer minor units (e.g. kobo) to a major-unit amount.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100))
}

// ToMinor converts a major-unit amount to integer minor units, truncating
// anything beyond two fractional digits.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// MulRate multiplies an amount by a fractional rate (e.g. 0.075 for VAT).
func MulRate(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// ApproxEqual reports whether two amounts agree within Tolerance.
func ApproxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(Tolerance) <= 0
}

// ClampMin returns amount, raised to floor when it falls below it.
func ClampMin(amount, floor decimal.Decimal) decimal.Decimal {
	if amount.Cmp(floor) < 0 {
		return floor
	}
	return amount
}

// NonNegative returns amount, or zero when it is negative.
func NonNegative(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return Zero
	}
	return amount
}

// Display renders an amount with exactly two fractional digits.
func Display(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
