// Package core defines the domain model for the shared-expense ledger.
//
// Money is held as int64 cents everywhere inside the engine; decimal
// conversion happens only at the API boundary so split and settlement
// arithmetic stays exact.
package core

import (
	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents).
type Money struct {
	Cents int64
}

// NewMoney wraps a cent amount.
func NewMoney(cents int64) Money {
	return Money{Cents: cents}
}

// ParseAmount converts a decimal string ("12.34") into cents, rounding
// half-up on the third decimal place. Only strictly positive amounts are
// accepted.
func ParseAmount(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsInteger() || !cents.IsPositive() {
		return Money{}, ErrInvalidAmount
	}
	v := cents.IntPart()
	if v <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: v}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Sub returns m - other. The result may be negative; Money is a plain cent
// container, signedness is up to the caller.
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

// Decimal returns the amount as a two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimal places, e.g. "12.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
