// Package money implements fixed-point currency arithmetic in minor units.
package money

import "github.com/shopspring/decimal"

// Cents is an amount in minor currency units. All order money fields are
// stored and computed in Cents; floats never enter the arithmetic.
type Cents int64

// FromInt64 converts a raw minor-unit amount.
func FromInt64(v int64) Cents {
	return Cents(v)
}

// Int64 returns the raw minor-unit amount.
func (c Cents) Int64() int64 {
	return int64(c)
}

// IsNegative reports whether the amount is below zero.
func (c Cents) IsNegative() bool {
	return c < 0
}

// Mul multiplies the amount by an integer quantity.
func (c Cents) Mul(qty int) Cents {
	return c * Cents(qty)
}

// Decimal returns the amount as a decimal in minor units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c))
}

// Max0 clamps negative amounts to zero.
func Max0(c Cents) Cents {
	if c < 0 {
		return 0
	}
	return c
}

// Sum adds the provided amounts.
func Sum(amounts ...Cents) Cents {
	var total Cents
	for _, a := range amounts {
		total += a
	}
	return total
}

// PercentOf applies rate to amount and rounds half-up to the nearest cent.
// A rate of 0.03 on 15000 cents yields 450 cents.
func PercentOf(amount Cents, rate decimal.Decimal) Cents {
	if rate.IsZero() || amount == 0 {
		return 0
	}
	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts order math deals in.
	product := decimal.NewFromInt(int64(amount)).Mul(rate).Round(0)
	return Cents(product.IntPart())
}

// RateFromFloat builds a decimal rate from a configured float, e.g. 0.03.
func RateFromFloat(rate float64) decimal.Decimal {
	return decimal.NewFromFloat(rate)
}
