// Package fixedpoint implements 18-decimal fixed-point arithmetic over 256-bit
// unsigned integers. Every operation reports overflow, underflow and division
// by zero as errors; nothing wraps and nothing rounds up.
package fixedpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by a scaled value.
const Decimals = 18

var (
	ErrOverflow       = errors.New("fixedpoint: overflow")
	ErrUnderflow      = errors.New("fixedpoint: underflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrInvalidDecimal = errors.New("fixedpoint: invalid decimal")
)

// One is 1.0 in 18-decimal fixed point.
var One = uint256.MustFromDecimal("1000000000000000000")

// Zero returns a fresh zero value.
func Zero() *uint256.Int { return new(uint256.Int) }

// FromUint64 returns v as a raw (unscaled) integer.
func FromUint64(v uint64) *uint256.Int { return uint256.NewInt(v) }

// Units returns v whole units scaled by One.
func Units(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), One)
}

// Clone copies x, treating nil as zero.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

// Add returns x+y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(orZero(x), orZero(y))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Sub returns x-y and fails when y exceeds x.
func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(orZero(x), orZero(y))
	if underflow {
		return nil, ErrUnderflow
	}
	return z, nil
}

// SubFloor returns max(x-y, 0).
func SubFloor(x, y *uint256.Int) *uint256.Int {
	if orZero(x).Cmp(orZero(y)) <= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// Mul returns x*y on raw integers.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(orZero(x), orZero(y))
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Div returns floor(x/y).
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y == nil || y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(uint256.Int).Div(orZero(x), y), nil
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate product.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(orZero(x), orZero(y), d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulFrac scales x by the fixed-point fraction f: floor(x*f/One).
func MulFrac(x, f *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, f, One)
}

// DivFrac returns x/y as a fixed-point fraction: floor(x*One/y).
func DivFrac(x, y *uint256.Int) (*uint256.Int, error) {
	return MulDiv(x, One, y)
}

// Min returns the smaller of x and y.
func Min(x, y *uint256.Int) *uint256.Int {
	if orZero(x).Cmp(orZero(y)) <= 0 {
		return Clone(x)
	}
	return Clone(y)
}

// Parse reads a decimal string such as "10", "0.4" or "1.000000000000000001"
// and returns it scaled by One. Digits past the 18th decimal are rejected.
func Parse(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidDecimal
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasDot && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("%w: more than %d decimals in %q", ErrInvalidDecimal, Decimals, s)
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	z, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return z, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) *uint256.Int {
	z, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return z
}

// Format renders a scaled value as a decimal string with trailing zeros
// trimmed.
func Format(x *uint256.Int) string {
	raw := orZero(x).Dec()
	if len(raw) <= Decimals {
		raw = strings.Repeat("0", Decimals-len(raw)+1) + raw
	}
	whole := raw[:len(raw)-Decimals]
	frac := strings.TrimRight(raw[len(raw)-Decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
