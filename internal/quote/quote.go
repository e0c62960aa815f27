// Package quote sizes trades against constant-product pairs. The formulas
// match the pair engine's fee-adjusted invariant exactly, so an amount
// quoted here is accepted by the pair for the same reserves.
package quote

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// fee: 0.3% => multiplier 997/1000
const (
	feeMul = 997
	feeDen = 1000
)

var (
	ErrInsufficientAmount       = errors.New("quote: insufficient amount")
	ErrInsufficientInputAmount  = errors.New("quote: insufficient input amount")
	ErrInsufficientOutputAmount = errors.New("quote: insufficient output amount")
	ErrInsufficientLiquidity    = errors.New("quote: insufficient liquidity")
	ErrIdenticalAddresses       = errors.New("quote: identical addresses")
	ErrZeroAddress              = errors.New("quote: zero address")
	ErrInvalidPath              = errors.New("quote: invalid path")
	ErrOverflow                 = errors.New("quote: overflow")
)

// SortTokens returns the two assets in canonical order.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	switch bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) {
	case 0:
		return common.Address{}, common.Address{}, ErrIdenticalAddresses
	case 1:
		tokenA, tokenB = tokenB, tokenA
	}
	if tokenA == (common.Address{}) {
		return common.Address{}, common.Address{}, ErrZeroAddress
	}
	return tokenA, tokenB, nil
}

// Quote returns the amount of B worth amountA at the current reserve ratio,
// with no fee. Used to size balanced liquidity deposits.
func Quote(amountA, reserveA, reserveB *uint256.Int) (*uint256.Int, error) {
	if amountA.IsZero() {
		return nil, ErrInsufficientAmount
	}
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	amountB, overflow := new(uint256.Int).MulOverflow(amountA, reserveB)
	if overflow {
		return nil, ErrOverflow
	}
	return amountB.Div(amountB, reserveA), nil
}

// GetAmountOut returns the largest output the pair releases for amountIn:
// amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997).
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(feeMul))
	if overflow {
		return nil, ErrOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, ErrOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(feeDen))
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, ErrOverflow
	}
	return numerator.Div(numerator, denominator), nil
}

// GetAmountIn returns the smallest input that releases amountOut:
// reserveIn*amountOut*1000 / ((reserveOut-amountOut)*997) + 1.
// The +1 covers the floor in the division so the payer never falls short.
func GetAmountIn(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.IsZero() {
		return nil, ErrInsufficientOutputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}

	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = numerator.MulOverflow(numerator, uint256.NewInt(feeDen)); overflow {
		return nil, ErrOverflow
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	if _, overflow = denominator.MulOverflow(denominator, uint256.NewInt(feeMul)); overflow {
		return nil, ErrOverflow
	}
	amountIn := numerator.Div(numerator, denominator)
	return amountIn.AddUint64(amountIn, 1), nil
}
