package pair

import (
	"testing"

	"github.com/holiman/uint256"
	"pgregory.net/rapid"

	"pairEngine/internal/quote"
)

// A quoted swap always clears the invariant, one more unit of output never
// does, and the raw reserve product never decreases across swaps.
func TestQuotedSwapsAgreeWithEngine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		reserveA := rapid.Uint64Range(1_000, 1<<40).Draw(t, "reserveA")
		reserveB := rapid.Uint64Range(1_000, 1<<40).Draw(t, "reserveB")
		f.seed(t, reserveA, reserveB)

		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			a, b, _ := f.pair.Reserves()
			before := new(uint256.Int).Mul(a, b)

			aToB := rapid.Bool().Draw(t, "aToB")
			reserveIn, reserveOut := a, b
			inToken := addrA
			if !aToB {
				reserveIn, reserveOut = b, a
				inToken = addrB
			}
			amountIn := rapid.Uint64Range(1, reserveIn.Uint64()).Draw(t, "amountIn")
			out, err := quote.GetAmountOut(u(amountIn), reserveIn, reserveOut)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if out.IsZero() {
				continue
			}
			f.deposit(inToken, amountIn)

			outA, outB := new(uint256.Int), out
			if !aToB {
				outA, outB = out, new(uint256.Int)
			}

			tooMuchA, tooMuchB := outA.Clone(), outB.Clone()
			if aToB {
				tooMuchB.AddUint64(tooMuchB, 1)
			} else {
				tooMuchA.AddUint64(tooMuchA, 1)
			}
			if err := f.pair.Swap(alice, tooMuchA, tooMuchB, alice, nil); err == nil {
				t.Fatalf("swap of quote+1 succeeded: in=%d out=%s", amountIn, out.Dec())
			}

			if err := f.pair.Swap(alice, outA, outB, alice, nil); err != nil {
				t.Fatalf("quoted swap failed: in=%d out=%s: %v", amountIn, out.Dec(), err)
			}
			a, b, _ = f.pair.Reserves()
			after := new(uint256.Int).Mul(a, b)
			if after.Lt(before) {
				t.Fatalf("product decreased: %s -> %s", before.Dec(), after.Dec())
			}
		}
	})
}
