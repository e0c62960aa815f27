package pair

import (
	"errors"

	"pairEngine/internal/token"
)

var (
	// ErrLocked is returned when mint, burn, swap, skim or sync is entered
	// while another of them is still in progress on the same pair.
	ErrLocked = errors.New("pair: locked")

	ErrInsufficientLiquidityMinted = errors.New("pair: insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("pair: insufficient liquidity burned")
	ErrInsufficientOutputAmount    = errors.New("pair: insufficient output amount")
	ErrInsufficientInputAmount     = errors.New("pair: insufficient input amount")
	ErrInsufficientLiquidity       = errors.New("pair: insufficient liquidity")
	ErrInsufficientShares          = errors.New("pair: insufficient shares")
	ErrInvalidTo                   = errors.New("pair: invalid to")
	ErrK                           = errors.New("pair: k")
	ErrOverflow                    = errors.New("pair: overflow")
	ErrNoCallee                    = errors.New("pair: no swap callee for recipient")
	ErrIdenticalTokens             = errors.New("pair: identical tokens")
	ErrUnsortedTokens              = errors.New("pair: tokens not in canonical order")
	ErrLockedShares                = errors.New("pair: shares held by the burn address are not transferable")
)

// Class groups failures by what the caller should do about them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassInvariant: the fee-adjusted product decreased. The trader under-paid
	// or the swap callback did not repay.
	ClassInvariant
	// ClassInsufficient: zero or out-of-range amounts. Re-quote and resubmit.
	ClassInsufficient
	// ClassReentrancy: blocked by the reentrancy guard. Never retry.
	ClassReentrancy
	// ClassTransfer: an asset rejected a transfer.
	ClassTransfer
)

func (c Class) String() string {
	switch c {
	case ClassInvariant:
		return "invariant"
	case ClassInsufficient:
		return "insufficient"
	case ClassReentrancy:
		return "reentrancy"
	case ClassTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by a Pair operation to its Class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrLocked):
		return ClassReentrancy
	case errors.Is(err, ErrK):
		return ClassInvariant
	case errors.Is(err, token.ErrTransferFailed):
		return ClassTransfer
	case errors.Is(err, ErrInsufficientLiquidityMinted),
		errors.Is(err, ErrInsufficientLiquidityBurned),
		errors.Is(err, ErrInsufficientOutputAmount),
		errors.Is(err, ErrInsufficientInputAmount),
		errors.Is(err, ErrInsufficientLiquidity),
		errors.Is(err, ErrInsufficientShares):
		return ClassInsufficient
	default:
		return ClassUnknown
	}
}
