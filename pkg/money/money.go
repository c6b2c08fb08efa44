// Package money converts between decimal currency amounts and int64 cents.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ToCents converts a decimal amount (e.g. 49.90) into cents. Amounts with
// more than two fractional digits are rejected rather than rounded.
func ToCents(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s must not be negative", amount)
	}
	shifted := amount.Shift(2)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than two decimal places", amount)
	}
	return shifted.IntPart(), nil
}

// ParseCents parses a decimal string into cents.
func ParseCents(raw string) (int64, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return ToCents(amount)
}

// FromCents returns the decimal representation of cents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}

// Format renders cents as a fixed two-place string.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(2)
}
