// Package money formats minor-unit amounts for people. Arithmetic stays in int64 cents.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FromCents converts an amount in minor units into a decimal in major units.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as "$14.00" for USD and "14.00 EUR" style for other currencies.
func Format(cents int64, currency string) string {
	amount := FromCents(cents).StringFixed(2)
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" || code == "USD" {
		if strings.HasPrefix(amount, "-") {
			return "-$" + strings.TrimPrefix(amount, "-")
		}
		return "$" + amount
	}
	return amount + " " + code
}

// ToCents parses a major-unit string such as "14.99" into cents, rounding half away from zero.
func ToCents(value string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}
