package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TaxRate is a tax rate expressed in basis points (1/100th of a percent).
// 1900 bps = 19%. Basis points keep rate storage integral; the decimal
// package carries the intermediate multiplication so rounding happens once.
type TaxRate struct {
	bps int64
}

// NewTaxRate creates a TaxRate from basis points
func NewTaxRate(bps int64) (TaxRate, error) {
	if bps < 0 || bps > 10000 {
		return TaxRate{}, fmt.Errorf("tax rate %d bps out of range [0, 10000]", bps)
	}
	return TaxRate{bps: bps}, nil
}

// MustTaxRate creates a TaxRate and panics on an out-of-range value
func MustTaxRate(bps int64) TaxRate {
	r, err := NewTaxRate(bps)
	if err != nil {
		panic(err)
	}
	return r
}

// BasisPoints returns the rate in basis points
func (r TaxRate) BasisPoints() int64 {
	return r.bps
}

// IsZero returns true for a 0% rate
func (r TaxRate) IsZero() bool {
	return r.bps == 0
}

// Fraction returns the rate as a decimal fraction (1900 bps -> 0.19)
func (r TaxRate) Fraction() decimal.Decimal {
	return decimal.New(r.bps, -4)
}

// ApplyTo computes the tax on a net amount in cents, rounded half up to the
// nearest cent. 10000 cents at 1900 bps yields 1900 cents.
func (r TaxRate) ApplyTo(netCents int64) int64 {
	return decimal.NewFromInt(netCents).Mul(r.Fraction()).Round(0).IntPart()
}

// String formats the rate as a percentage, e.g. "19%"
func (r TaxRate) String() string {
	return r.Fraction().Mul(decimal.NewFromInt(100)).String() + "%"
}
