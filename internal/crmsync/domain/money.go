package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Money is a monetary amount paired with its ISO 4217 currency code, as
// used by CRM money fields (wire form "<amount>|<currency>").
type Money struct {
	Amount   float64
	Currency string
}

var (
	ErrInvalidMoneyWire = errors.New("invalid money wire value")
	ErrNegativeAmount   = errors.New("amount cannot be negative")
)

// NewMoney builds a Money value, rejecting negative amounts per the
// "opportunity >= 0" invariant shared by money-typed deal fields.
func NewMoney(amount float64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(currency))}, nil
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// ToWire renders the CRM money wire form "<amount>|<currency>".
func (m Money) ToWire() string {
	return fmt.Sprintf("%s|%s", strconv.FormatFloat(m.Amount, 'f', -1, 64), m.Currency)
}

// MoneyFromWire parses a CRM money field such as "1953500|KZT" into a Money
// value, extracting the amount as a float and the trailing currency code.
func MoneyFromWire(wire string) (Money, error) {
	parts := strings.SplitN(wire, "|", 2)
	if len(parts) != 2 {
		return Money{}, ErrInvalidMoneyWire
	}
	amount, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidMoneyWire, err)
	}
	return Money{Amount: amount, Currency: strings.ToUpper(strings.TrimSpace(parts[1]))}, nil
}

// Add returns the sum of two Money values of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}
