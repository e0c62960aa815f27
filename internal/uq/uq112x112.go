// Package uq implements the UQ112x112 binary fixed-point format used for
// cumulative prices: 112 integer bits and 112 fractional bits in a 256-bit word.
package uq

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Resolution is the number of fractional bits.
const Resolution = 112

var (
	// ErrDivideByZero is returned when dividing an encoded value by zero.
	ErrDivideByZero = errors.New("uq: divide by zero")
	// ErrOutOfRange is returned when a value does not fit in 112 bits.
	ErrOutOfRange = errors.New("uq: value exceeds 112 bits")
)

var (
	// Q112 is 1.0 in UQ112x112.
	Q112 = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)
	// MaxUint112 is the largest reserve value.
	MaxUint112 = new(uint256.Int).Sub(Q112, uint256.NewInt(1))
)

// Fits reports whether v fits in 112 bits.
func Fits(v *uint256.Int) bool {
	return v.BitLen() <= Resolution
}

// Encode shifts a 112-bit integer into the integer half of a UQ112x112.
func Encode(y *uint256.Int) (*uint256.Int, error) {
	if !Fits(y) {
		return nil, ErrOutOfRange
	}
	return new(uint256.Int).Lsh(y, Resolution), nil
}

// Div divides an encoded value by a 112-bit integer, yielding a UQ112x112
// quotient. Encode(a) / b keeps the fractional part of a/b, so a 2:3 ratio
// is stored as roughly 0.666 instead of truncating to zero.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivideByZero
	}
	if !Fits(y) {
		return nil, ErrOutOfRange
	}
	return new(uint256.Int).Div(x, y), nil
}

// Ratio returns Encode(num) / den.
func Ratio(num, den *uint256.Int) (*uint256.Int, error) {
	encoded, err := Encode(num)
	if err != nil {
		return nil, err
	}
	return Div(encoded, den)
}

// Rat converts a UQ112x112 value into an exact rational.
func Rat(x *uint256.Int) *big.Rat {
	return new(big.Rat).SetFrac(x.ToBig(), Q112.ToBig())
}

// FloatString formats a UQ112x112 value with the given number of decimals.
func FloatString(x *uint256.Int, decimals int) string {
	if x == nil {
		return "0"
	}
	return Rat(x).FloatString(decimals)
}
