// Package money converts between user-entered decimal amounts and the integer
// minor units the ledger stores.
package money

import (
	"fmt"
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// NormalizeCurrency upper-cases code and checks it is a known ISO 4217 code.
// An empty code yields models.DefaultCurrency.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return models.DefaultCurrency, nil
	}
	if gomoney.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: unknown currency %q", models.ErrInvalidInput, code)
	}
	return code, nil
}

// Fraction returns the number of minor-unit digits of currency.
func Fraction(currency string) int {
	cur := gomoney.GetCurrency(currency)
	if cur == nil {
		return 2
	}
	return cur.Fraction
}

// ToMinor converts a major-unit amount (e.g. 12.34 EUR) to minor units (1234).
// Amounts with more precision than the currency allows are rejected.
func ToMinor(amount decimal.Decimal, currency string) (int64, error) {
	shifted := amount.Shift(int32(Fraction(currency)))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", models.ErrInvalidInput, amount, Fraction(currency))
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("%w: amount %s out of range", models.ErrInvalidInput, amount)
	}
	return shifted.IntPart(), nil
}

// AddMinor adds two minor-unit amounts. A sum outside int64 is
// models.ErrInvalidInput.
func AddMinor(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%w: %d + %d overflows", models.ErrInvalidInput, a, b)
	}
	return a + b, nil
}

// FromMinor converts minor units back to a major-unit decimal.
func FromMinor(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -int32(Fraction(currency)))
}

// Format renders minor units as a plain decimal string, e.g. "12.34".
func Format(minor int64, currency string) string {
	return FromMinor(minor, currency).StringFixed(int32(Fraction(currency)))
}

// Display renders minor units with the currency symbol, e.g. "€12.34".
func Display(minor int64, currency string) string {
	if gomoney.GetCurrency(currency) == nil {
		return Format(minor, currency) + " " + currency
	}
	return gomoney.New(minor, currency).Display()
}
