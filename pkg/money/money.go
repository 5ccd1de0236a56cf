// Package money renders integer minor-unit amounts for display. Arithmetic stays in
// int64 cents everywhere else; conversion happens only at the presentation edge.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minorUnitExponent is the number of decimal places between a currency's major and
// minor unit. Every currency the catalog carries today uses cents.
const minorUnitExponent = 2

// Decimal converts a minor-unit amount into its major-unit decimal value.
func Decimal(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-minorUnitExponent)
}

// Format renders cents as "19.99", optionally suffixed with the currency code ("19.99 USD").
func Format(cents int64, currency string) string {
	amount := Decimal(cents).StringFixed(minorUnitExponent)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return amount
	}
	return amount + " " + currency
}
