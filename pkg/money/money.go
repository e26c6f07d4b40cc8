// Package money provides fixed-point currency amounts.
// It uses integer math (minor units, two fractional digits) to avoid
// floating point errors. Binary floating point is never used.
package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in minor units (cents).
// The scale is fixed at two fractional digits.
type Amount int64

// Zero is the zero amount.
const Zero Amount = 0

var errMalformed = errors.New("malformed amount")

// FromMinor creates an Amount from minor units.
func FromMinor(minor int64) Amount {
	return Amount(minor)
}

// Parse parses a decimal string like "300.00" or "-12.5" into an Amount.
// At most two fractional digits are accepted.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", errMalformed)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: %q", errMalformed, s)
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two fractional digits", errMalformed, s)
	}
	// Pad fraction to exactly two digits
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errMalformed, s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errMalformed, s)
	}

	minor := w*100 + f
	if neg {
		minor = -minor
	}
	return Amount(minor), nil
}

// MustParse parses s and panics on error. For constants in tests and fixtures.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Minor returns the amount in minor units.
func (a Amount) Minor() int64 { return int64(a) }

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// Neg returns -a.
func (a Amount) Neg() Amount { return -a }

// Abs returns the absolute value of a.
func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// IsZero returns true if the amount is 0.
func (a Amount) IsZero() bool { return a == 0 }

// IsPositive returns true if the amount is > 0.
func (a Amount) IsPositive() bool { return a > 0 }

// IsNegative returns true if the amount is < 0.
func (a Amount) IsNegative() bool { return a < 0 }

/// Cmp compares a and b: -1 if a < b, 0 if equal, +1 if a > b.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String formats the amount with exactly two fractional digits, e.g. "-12.50".
func (a Amount) String() string {
	minor := int64(a)
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// MarshalJSON encodes the amount as a decimal string, e.g. "300.00".
// String encoding keeps the wire format free of float rounding.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON accepts a decimal string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", errMalformed, data)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Sum adds a slice of amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total += a
	}
	return total
}
