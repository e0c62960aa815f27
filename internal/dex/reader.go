package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairEngine/internal/chain"
	"pairEngine/internal/model"
	"pairEngine/internal/oracle"
	"pairEngine/internal/quote"
)

// ErrPairNotFound is returned when the factory has no pair for two tokens.
var ErrPairNotFound = errors.New("dex: pair not found")

// ContractCaller performs read-only contract calls. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ReaderConfig configures retries for contract calls.
type ReaderConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// Reserves is the getReserves result of a deployed pair.
type Reserves struct {
	Reserve0           *uint256.Int
	Reserve1           *uint256.Int
	BlockTimestampLast uint32
}

type pairTokens struct {
	token0 common.Address
	token1 common.Address
}

// PairReader reads deployed pairs and factories over JSON-RPC. Token
// addresses and factory lookups are immutable and cached.
type PairReader struct {
	caller ContractCaller
	cfg    ReaderConfig

	mu     sync.RWMutex
	tokens map[common.Address]pairTokens
	pairs  map[[3]common.Address]common.Address
	metas  map[common.Address]model.TokenMeta
}

func NewPairReader(caller ContractCaller, cfg ReaderConfig) *PairReader {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PairReader{
		caller: caller,
		cfg:    cfg,
		tokens: make(map[common.Address]pairTokens),
		pairs:  make(map[[3]common.Address]common.Address),
		metas:  make(map[common.Address]model.TokenMeta),
	}
}

// Tokens returns token0 and token1 of a pair.
func (r *PairReader) Tokens(ctx context.Context, pair common.Address) (token0, token1 common.Address, err error) {
	r.mu.RLock()
	cached, ok := r.tokens[pair]
	r.mu.RUnlock()
	if ok {
		return cached.token0, cached.token1, nil
	}

	pairABI, err := PairABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse pair abi: %w", err)
	}
	values, err := r.call(ctx, pair, pairABI, "token0", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if token0, err = asAddress(values[0]); err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}
	values, err = r.call(ctx, pair, pairABI, "token1", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	if token1, err = asAddress(values[0]); err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}

	r.mu.Lock()
	r.tokens[pair] = pairTokens{token0: token0, token1: token1}
	r.mu.Unlock()
	return token0, token1, nil
}

// Reserves reads getReserves at block, or at the latest block when nil.
func (r *PairReader) Reserves(ctx context.Context, pair common.Address, block *big.Int) (Reserves, error) {
	pairABI, err := PairABI()
	if err != nil {
		return Reserves{}, fmt.Errorf("parse pair abi: %w", err)
	}
	values, err := r.call(ctx, pair, pairABI, "getReserves", block)
	if err != nil {
		return Reserves{}, err
	}
	if len(values) != 3 {
		return Reserves{}, fmt.Errorf("unexpected getReserves values: %d", len(values))
	}
	reserve0, err := asUint256(values[0])
	if err != nil {
		return Reserves{}, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asUint256(values[1])
	if err != nil {
		return Reserves{}, fmt.Errorf("reserve1: %w", err)
	}
	ts, ok := values[2].(uint32)
	if !ok {
		return Reserves{}, fmt.Errorf("blockTimestampLast: unsupported type %T", values[2])
	}
	return Reserves{Reserve0: reserve0, Reserve1: reserve1, BlockTimestampLast: ts}, nil
}

// PairState reads the full persisted view of a deployed pair. Share
// balances are not enumerable on chain and are left empty.
func (r *PairReader) PairState(ctx context.Context, pair common.Address, block *big.Int) (model.PairState, error) {
	token0, token1, err := r.Tokens(ctx, pair)
	if err != nil {
		return model.PairState{}, err
	}
	reserves, err := r.Reserves(ctx, pair, block)
	if err != nil {
		return model.PairState{}, err
	}

	pairABI, err := PairABI()
	if err != nil {
		return model.PairState{}, fmt.Errorf("parse pair abi: %w", err)
	}
	words := make(map[string]string, 4)
	for _, method := range []string{"price0CumulativeLast", "price1CumulativeLast", "kLast", "totalSupply"} {
		values, err := r.call(ctx, pair, pairABI, method, block)
		if err != nil {
			return model.PairState{}, err
		}
		v, err := asUint256(values[0])
		if err != nil {
			return model.PairState{}, fmt.Errorf("%s: %w", method, err)
		}
		words[method] = v.Dec()
	}

	return model.PairState{
		Address:            pair,
		TokenA:             token0,
		TokenB:             token1,
		ReserveA:           reserves.Reserve0.Dec(),
		ReserveB:           reserves.Reserve1.Dec(),
		BlockTimestampLast: reserves.BlockTimestampLast,
		PriceACumulative:   words["price0CumulativeLast"],
		PriceBCumulative:   words["price1CumulativeLast"],
		KLast:              words["kLast"],
		TotalSupply:        words["totalSupply"],
	}, nil
}

// CurrentCumulativePrices extends a pair's stored cumulative prices to
// now using its reserves at block, so a TWAP can be taken without waiting
// for the next trade to write them. A nil block reads the latest state.
func (r *PairReader) CurrentCumulativePrices(ctx context.Context, pair common.Address, block *big.Int, now uint32) (oracle.Accumulator, error) {
	state, err := r.PairState(ctx, pair, block)
	if err != nil {
		return oracle.Accumulator{}, err
	}
	var acc oracle.Accumulator
	if err := acc.PriceACumulative.SetFromDecimal(state.PriceACumulative); err != nil {
		return oracle.Accumulator{}, fmt.Errorf("price0CumulativeLast: %w", err)
	}
	if err := acc.PriceBCumulative.SetFromDecimal(state.PriceBCumulative); err != nil {
		return oracle.Accumulator{}, fmt.Errorf("price1CumulativeLast: %w", err)
	}
	acc.Timestamp = state.BlockTimestampLast

	reserve0, err := uint256.FromDecimal(state.ReserveA)
	if err != nil {
		return oracle.Accumulator{}, err
	}
	reserve1, err := uint256.FromDecimal(state.ReserveB)
	if err != nil {
		return oracle.Accumulator{}, err
	}
	return oracle.Advance(acc, reserve0, reserve1, now)
}

// GetPair resolves the pair for two tokens through a factory.
func (r *PairReader) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := quote.SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	key := [3]common.Address{factory, token0, token1}
	r.mu.RLock()
	pair, ok := r.pairs[key]
	r.mu.RUnlock()
	if ok {
		return pair, nil
	}

	factoryABI, err := FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := r.call(ctx, factory, factoryABI, "getPair", nil, token0, token1)
	if err != nil {
		return common.Address{}, err
	}
	if pair, err = asAddress(values[0]); err != nil {
		return common.Address{}, fmt.Errorf("getPair: %w", err)
	}
	if pair == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s/%s", ErrPairNotFound, token0.Hex(), token1.Hex())
	}

	r.mu.Lock()
	r.pairs[key] = pair
	r.mu.Unlock()
	return pair, nil
}

// TokenMeta loads symbol and decimals. A token without a readable symbol
// still returns its decimals.
func (r *PairReader) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	r.mu.RLock()
	meta, ok := r.metas[token]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta = model.TokenMeta{Address: token.Hex()}
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := r.call(ctx, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals: unsupported type %T", values[0])
	}
	meta.Decimals = decimals

	if values, err := r.call(ctx, token, stringABI, "symbol", nil); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := r.call(ctx, token, bytes32ABI, "symbol", nil); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		r.cfg.Logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	r.mu.Lock()
	r.metas[token] = meta
	r.mu.Unlock()
	return meta, nil
}

func (r *PairReader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = chain.WithRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.caller.CallContract(ctx, msg, block)
		if callErr != nil {
			r.cfg.Logger.Debug("contract call failed",
				zap.String("to", to.Hex()),
				zap.String("method", method),
				zap.Error(callErr),
			)
		}
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// FactoryReserves resolves pairs through a deployed factory and serves
// their live reserves to the quoting functions.
type FactoryReserves struct {
	Reader  *PairReader
	Factory common.Address
	Block   *big.Int
}

func (f FactoryReserves) Reserves(ctx context.Context, tokenIn, tokenOut common.Address) (*uint256.Int, *uint256.Int, error) {
	pair, err := f.Reader.GetPair(ctx, f.Factory, tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	reserves, err := f.Reader.Reserves(ctx, pair, f.Block)
	if err != nil {
		return nil, nil, err
	}
	token0, _, err := quote.SortTokens(tokenIn, tokenOut)
	if err != nil {
		return nil, nil, err
	}
	if token0 == tokenIn {
		return reserves.Reserve0, reserves.Reserve1, nil
	}
	return reserves.Reserve1, reserves.Reserve0, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asUint256(value interface{}) (*uint256.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		out, overflow := uint256.FromBig(v)
		if overflow {
			return nil, fmt.Errorf("value %s overflows 256 bits", v.String())
		}
		return out, nil
	case uint64:
		return uint256.NewInt(v), nil
	case uint32:
		return uint256.NewInt(uint64(v)), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
