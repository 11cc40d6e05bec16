// Package money models monetary values as exact integer cents.
// CNAB monetary fields carry an implied decimal scale; keeping the
// raw integer avoids every float rounding hazard in trailer checks.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in cents (implied scale 2).
type Amount int64

// Zero is the additive identity.
const Zero Amount = 0

// FromCents builds an Amount from a raw cent count.
func FromCents(cents int64) Amount { return Amount(cents) }

// ParseFixed parses a zero-padded, unsigned fixed-width numeric field
// with the given implied scale into an Amount. An empty or all-space
// field parses to zero, matching CNAB padding conventions.
func ParseFixed(field string, scale int) (Amount, error) {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return Zero, nil
	}
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("invalid monetary field %q: %w", field, err)
	}
	if n < 0 {
		return Zero, fmt.Errorf("negative monetary field %q", field)
	}
	for s := scale; s < 2; s++ {
		n *= 10
	}
	for s := scale; s > 2; s-- {
		n /= 10
	}
	return Amount(n), nil
}

// Cents returns the raw cent count.
func (a Amount) Cents() int64 { return int64(a) }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a == 0 }

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool { return a < 0 }

// String renders the amount with two decimal places, e.g. "100.50".
func (a Amount) String() string {
	sign := ""
	c := int64(a)
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}

// MarshalJSON renders the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts both "100.50" style decimals and bare
// integers, which are read as whole currency units.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = Zero
		return nil
	}
	whole, frac, found := strings.Cut(s, ".")
	if !found {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", s, err)
		}
		*a = Amount(n * 100)
		return nil
	}
	for len(frac) < 2 {
		frac += "0"
	}
	n, err := strconv.ParseInt(whole+frac[:2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	*a = Amount(n)
	return nil
}
