package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
)

// DefaultCurrency is the default currency for new invoices
const DefaultCurrency = EUR

// IsValid checks if the currency is one the engine supports
func (c Currency) IsValid() bool {
	switch c {
	case EUR, USD, GBP, CHF:
		return true
	}
	return false
}

// Money is a value object for monetary amounts. Amounts are integer minor
// units (cents) so that totals arithmetic is exact; it is immutable and all
// operations return new instances.
type Money struct {
	cents    int64
	currency Currency
}

// NewMoney creates Money from an amount in cents
func NewMoney(cents int64, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, fmt.Errorf("unsupported currency %q", currency)
	}
	return Money{cents: cents, currency: currency}, nil
}

// MustMoney creates Money and panics on an invalid currency. Reserved for
// tests and constants.
func MustMoney(cents int64, currency Currency) Money {
	m, err := NewMoney(cents, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns zero Money in the given currency
func Zero(currency Currency) Money {
	return Money{cents: 0, currency: currency}
}

// Cents returns the amount in minor units
func (m Money) Cents() int64 {
	return m.cents
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// IsZero returns true when the amount is zero
func (m Money) IsZero() bool {
	return m.cents == 0
}

// IsPositive returns true when the amount is greater than zero
func (m Money) IsPositive() bool {
	return m.cents > 0
}

// Add returns m + other. Mixing currencies is a programming error.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{cents: m.cents + other.cents, currency: m.currency}, nil
}

// Sub returns m - other
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.currency, other.currency)
	}
	return Money{cents: m.cents - other.cents, currency: m.currency}, nil
}

// Decimal returns the amount in major units as a decimal (e.g. 1190 -> 11.90)
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.cents, -2)
}

// String formats the amount with the currency code, e.g. "119.00 EUR"
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.currency)
}
