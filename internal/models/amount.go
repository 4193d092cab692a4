package models

import (
	"bytes"
	"math"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits (currency minor units)
// an Amount carries.
const AmountScale = 2

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// Amount is an immutable monetary value with a fixed precision of
// AmountScale fractional digits.
//
// The zero value is a valid zero amount. Amounts are compared by numeric
// value, so 1.5 and 1.50 are equal.
type Amount struct {
	d decimal.Decimal
}

// ZeroAmount is the zero monetary value.
var ZeroAmount = Amount{}

// ParseAmount parses a decimal string such as "12.50".
// It fails with InvalidAmountFormat when the string is not a finite decimal,
// carries more than AmountScale fractional digits, or does not fit in an
// int64 count of minor units.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, NewError(KindInvalidAmountFormat, "invalid amount %q", s).With("amount", s)
	}
	return amountFromDecimal(d, s)
}

// MustParseAmount is like ParseAmount but panics on error. Meant for
// constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAmountFromMinor builds an Amount from a count of minor units (cents).
func NewAmountFromMinor(minor int64) Amount {
	return Amount{d: decimal.New(minor, -AmountScale)}
}

func amountFromDecimal(d decimal.Decimal, raw string) (Amount, error) {
	if !d.Equal(d.Round(AmountScale)) {
		return Amount{}, NewError(KindInvalidAmountFormat,
			"amount %q has more than %d fractional digits", raw, AmountScale).With("amount", raw)
	}
	a := Amount{d: d}
	if !a.Representable() {
		return Amount{}, NewError(KindInvalidAmountFormat, "amount %q is out of range", raw).With("amount", raw)
	}
	return a, nil
}

// Representable reports whether a fits in an int64 count of minor units,
// the form stores persist.
func (a Amount) Representable() bool {
	minor := a.d.Shift(AmountScale)
	return !minor.GreaterThan(maxMinor) && !minor.LessThan(minMinor)
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// Cmp returns -1, 0 or +1 when a is less than, equal to or greater than b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// Equal reports whether a and b have the same numeric value.
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }

func (a Amount) IsNegative() bool { return a.d.IsNegative() }
func (a Amount) IsPositive() bool { return a.d.IsPositive() }
func (a Amount) IsZero() bool     { return a.d.IsZero() }

// MinorUnits returns the value as an integer count of minor units.
// Amounts built through this package always fit in an int64.
func (a Amount) MinorUnits() int64 {
	return a.d.Shift(AmountScale).IntPart()
}

// Decimal exposes the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Float64 returns a lossy float representation, for metrics only.
func (a Amount) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

// String formats the amount with exactly AmountScale fractional digits.
func (a Amount) String() string { return a.d.StringFixed(AmountScale) }

// MarshalJSON encodes the amount as a bare JSON number, e.g. 12.50.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	parsed, err := ParseAmount(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
