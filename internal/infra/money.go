package infra

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money lives in two fixed-point representations:
//
//   - amounts (balances, wagers, payouts) are int64 cents
//   - multipliers and crash points are int64 hundredths (350 = 3.50x)
//
// Floating point never touches money. decimal.Decimal is used only at the
// JSON boundary and for the bet x multiplier product.

var centsFactor = decimal.NewFromInt(100)

// ParseCents parses a decimal amount ("10.00", "10", "10.5") into cents.
// More than two fractional digits is an error, not a rounding.
func ParseCents(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(centsFactor)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than 2 decimal places", d.String())
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s overflows", d.String())
	}
	return scaled.IntPart(), nil
}

// FormatCents renders cents as a two-decimal string ("3200" -> "32.00").
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// FormatHundredths renders a multiplier or crash point ("350" -> "3.50").
func FormatHundredths(h int64) string {
	return decimal.New(h, -2).StringFixed(2)
}

// MulCents computes betCents x multHundredths with two-decimal truncation.
// Exact for scale-2 inputs: 1000 cents x 320 hundredths = 3200 cents.
func MulCents(cents, hundredths int64) int64 {
	product := decimal.New(cents, 0).Mul(decimal.New(hundredths, -2))
	return product.Truncate(0).IntPart()
}
