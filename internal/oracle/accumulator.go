// Package oracle maintains the cumulative price integrals of a pair and
// derives time-weighted average prices from them.
//
// Both the timestamps and the cumulative sums live in fixed-width words and
// are allowed to wrap. A TWAP is always computed as a difference of two
// readings divided by the elapsed time, and modular subtraction gives the
// exact difference as long as less than one full period passed between them.
package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"pairEngine/internal/uq"
)

var (
	// ErrZeroElapsed is returned when averaging two readings taken at the same time.
	ErrZeroElapsed = errors.New("oracle: zero elapsed time")
)

// Clock returns the current timestamp truncated to 32 bits.
type Clock func() uint32

// SystemClock reads wall-clock seconds modulo 2^32.
func SystemClock() uint32 {
	return uint32(time.Now().Unix())
}

// Accumulator is one reading of a pair's price integrals.
// PriceACumulative integrates reserveB/reserveA (price of A in B) and
// PriceBCumulative integrates reserveA/reserveB, both as UQ112x112 * seconds.
type Accumulator struct {
	PriceACumulative uint256.Int
	PriceBCumulative uint256.Int
	Timestamp        uint32
}

// Elapsed returns now - last over the 32-bit timestamp modulus.
func Elapsed(last, now uint32) uint32 {
	return now - last
}

// Advance extends the integrals by the price implied by the given reserves
// held constant since acc.Timestamp. The timestamp is always moved to now.
// When no time passed or a reserve is empty the sums are left untouched.
func Advance(acc Accumulator, reserveA, reserveB *uint256.Int, now uint32) (Accumulator, error) {
	next := acc
	next.Timestamp = now

	elapsed := Elapsed(acc.Timestamp, now)
	if elapsed == 0 || reserveA.IsZero() || reserveB.IsZero() {
		return next, nil
	}

	priceA, err := uq.Ratio(reserveB, reserveA)
	if err != nil {
		return acc, fmt.Errorf("price a: %w", err)
	}
	priceB, err := uq.Ratio(reserveA, reserveB)
	if err != nil {
		return acc, fmt.Errorf("price b: %w", err)
	}

	dt := uint256.NewInt(uint64(elapsed))
	priceA.Mul(priceA, dt)
	priceB.Mul(priceB, dt)

	// uint256 addition is modular; wrapping here is expected.
	next.PriceACumulative.Add(&acc.PriceACumulative, priceA)
	next.PriceBCumulative.Add(&acc.PriceBCumulative, priceB)
	return next, nil
}

// Average returns the UQ112x112 time-weighted average prices between two
// readings of the same pair.
func Average(start, end Accumulator) (priceA, priceB *uint256.Int, err error) {
	elapsed := Elapsed(start.Timestamp, end.Timestamp)
	if elapsed == 0 {
		return nil, nil, ErrZeroElapsed
	}
	dt := uint256.NewInt(uint64(elapsed))

	priceA = new(uint256.Int).Sub(&end.PriceACumulative, &start.PriceACumulative)
	priceA.Div(priceA, dt)
	priceB = new(uint256.Int).Sub(&end.PriceBCumulative, &start.PriceBCumulative)
	priceB.Div(priceB, dt)
	return priceA, priceB, nil
}

// Consult applies an average price to an amount, returning the integer
// amount of the other asset: amount * price >> 112.
func Consult(price, amount *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(price, amount)
	if overflow {
		return nil, fmt.Errorf("oracle: consult overflow")
	}
	return out.Rsh(out, uq.Resolution), nil
}
