package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with currency
type Money struct {
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
	Currency string          `json:"currency" yaml:"currency"`
}

// NewMoney creates a new Money instance with the given amount and currency
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ParseSwiftAmount parses an amount written with a comma decimal separator,
// as used throughout SWIFT MT messages ("1234,56", "100,", ",5").
func ParseSwiftAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	if strings.Count(s, ",") > 1 || strings.Contains(s, ".") {
		return decimal.Zero, fmt.Errorf("invalid amount '%s'", s)
	}
	normalized := strings.Replace(s, ",", ".", 1)
	if strings.HasSuffix(normalized, ".") {
		normalized += "0"
	}
	if strings.HasPrefix(normalized, ".") {
		normalized = "0" + normalized
	}
	dec, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount '%s': %w", s, err)
	}
	return dec, nil
}

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Neg returns the negated money amount
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// Equal returns true if two Money values are equal (same amount and currency)
func (m Money) Equal(other Money) bool {
	return m.Amount.Equal(other.Amount) && m.Currency == other.Currency
}

// String returns a string representation of the money value
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
