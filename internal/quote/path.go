package quote

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ReserveSource resolves the pair for two assets and returns its reserves
// oriented as (reserveIn, reserveOut).
type ReserveSource interface {
	Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (reserveIn, reserveOut *uint256.Int, err error)
}

// GetAmountsOut chains GetAmountOut along path, feeding each hop's output
// into the next. amounts[0] is amountIn and amounts[len(path)-1] the final output.
func GetAmountsOut(ctx context.Context, src ReserveSource, amountIn *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[0] = amountIn.Clone()
	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := src.Reserves(ctx, path[i], path[i+1])
		if err != nil {
			return nil, fmt.Errorf("hop %d reserves: %w", i, err)
		}
		out, err := GetAmountOut(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// GetAmountsIn works backwards from the desired final output.
// amounts[0] is the required input and amounts[len(path)-1] is amountOut.
func GetAmountsIn(ctx context.Context, src ReserveSource, amountOut *uint256.Int, path []common.Address) ([]*uint256.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}
	amounts := make([]*uint256.Int, len(path))
	amounts[len(amounts)-1] = amountOut.Clone()
	for i := len(path) - 1; i > 0; i-- {
		reserveIn, reserveOut, err := src.Reserves(ctx, path[i-1], path[i])
		if err != nil {
			return nil, fmt.Errorf("hop %d reserves: %w", i-1, err)
		}
		in, err := GetAmountIn(amounts[i], reserveIn, reserveOut)
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i-1, err)
		}
		amounts[i-1] = in
	}
	return amounts, nil
}

// StaticReserves is a ReserveSource over fixed reserves keyed by the
// canonical token order.
type StaticReserves struct {
	pairs map[[2]common.Address][2]*uint256.Int
}

func NewStaticReserves() *StaticReserves {
	return &StaticReserves{pairs: make(map[[2]common.Address][2]*uint256.Int)}
}

// Set records reserves for tokenA and tokenB given in any order.
func (s *StaticReserves) Set(tokenA, tokenB common.Address, reserveA, reserveB *uint256.Int) error {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return err
	}
	if token0 != tokenA {
		reserveA, reserveB = reserveB, reserveA
	}
	s.pairs[[2]common.Address{token0, token1}] = [2]*uint256.Int{reserveA.Clone(), reserveB.Clone()}
	return nil
}

func (s *StaticReserves) Reserves(_ context.Context, tokenIn, tokenOut common.Address) (*uint256.Int, *uint256.Int, error) {
	token0, token1, err := SortTokens(tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	reserves, ok := s.pairs[[2]common.Address{token0, token1}]
	if !ok {
		return nil, nil, fmt.Errorf("no pair for %s/%s", tokenIn.Hex(), tokenOut.Hex())
	}
	if token0 == tokenIn {
		return reserves[0].Clone(), reserves[1].Clone(), nil
	}
	return reserves[1].Clone(), reserves[0].Clone(), nil
}
