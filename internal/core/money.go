// Package core provides money parsing and handling utilities.
//
// Amounts are decimals; direction is carried by TransactionType, never by sign.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money wraps a decimal so it is exchanged as a bare JSON number.
type Money struct {
	decimal.Decimal
}

// NewMoney builds Money from a float, mostly for tests and fixtures.
func NewMoney(f float64) Money {
	return Money{Decimal: decimal.NewFromFloat(f)}
}

// ParseAmount converts user input into a strictly positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
//
// Examples:
//
//	ParseAmount("12.50") -> 12.5, nil
//	ParseAmount("12,50") -> 12.5, nil
//	ParseAmount("0")     -> ErrInvalidAmount
//	ParseAmount("-3")    -> ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m := Money{Decimal: d}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func (m Money) Validate() error {
	if !m.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// Equal compares two amounts by value (12.5 == 12.50).
func (m Money) Equal(o Money) bool {
	return m.Decimal.Equal(o.Decimal)
}

// MarshalJSON writes the amount as a number, not a quoted string.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Decimal.UnmarshalJSON(b)
}

// Dollars formats the amount for display, e.g. "$1,234.50" or "-$3.00".
func (m Money) Dollars() string {
	neg := m.IsNegative()
	s := m.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
