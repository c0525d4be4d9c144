package domain

import (
	"errors"
	"fmt"
	"math"
)

type Currency string

const (
	USD Currency = "USD"
)

// Money holds an amount in minor units (cents).
// Example: $10.50 is stored as 1050.
type Money struct {
	Amount   int64
	Currency Currency
}

// NewMoney creates a new Money instance
func NewMoney(amount int64, currency Currency) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// Largest dollar amount whose cent count still fits in int64. Provider and
// user amounts beyond it (or negative, NaN, Inf) are rejected rather than
// silently wrapped by the float-to-int conversion.
const maxUSDDollars = math.MaxInt64 / 100

// FromUSD converts a fractional dollar amount (as the payment provider
// reports it) into minor units, rounding half away from zero.
func FromUSD(dollars float64) (Money, error) {
	if math.IsNaN(dollars) || math.IsInf(dollars, 0) || dollars < 0 || dollars >= maxUSDDollars {
		return Money{}, fmt.Errorf("amount out of range: %v", dollars)
	}
	cents := int64(math.Round(dollars * 100))
	return Money{Amount: cents, Currency: USD}, nil
}

// Dollars renders the amount back as fractional dollars for display.
func (m Money) Dollars() float64 {
	return float64(m.Amount) / 100
}

// Add adds two Money instances safely
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: cannot add %s to %s", other.Currency, m.Currency)
	}
	return Money{
		Amount:   m.Amount + other.Amount,
		Currency: m.Currency,
	}, nil
}

// Subtract subtracts Money safely
func (m Money) Subtract(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, errors.New("currency mismatch")
	}
	if m.Amount < other.Amount {
		return Money{}, errors.New("insufficient balance")
	}
	return Money{
		Amount:   m.Amount - other.Amount,
		Currency: m.Currency,
	}, nil
}
