// Package registry is the in-process factory: it creates at most one pair
// per unordered asset pair, derives the pair's address deterministically,
// and holds the protocol fee switch shared by all of its pairs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairEngine/internal/model"
	"pairEngine/internal/oracle"
	"pairEngine/internal/pair"
	"pairEngine/internal/quote"
	"pairEngine/internal/token"
)

var (
	ErrPairExists   = errors.New("registry: pair exists")
	ErrPairNotFound = errors.New("registry: pair not found")
)

// PairCodeHash stands in for the init code hash in the CREATE2 derivation.
var PairCodeHash = crypto.Keccak256Hash([]byte("pairEngine/pair/v2"))

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// Options are handed to every pair the registry creates.
type Options struct {
	Address common.Address
	Callees pair.CalleeResolver
	Journal pair.Journal
	Sink    pair.EventSink
	Clock   oracle.Clock
	Logger  *zap.Logger
}

type Registry struct {
	opts Options

	mu    sync.RWMutex
	pairs map[pairKey]*pair.Pair
	all   []*pair.Pair
	feeTo common.Address
}

func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{opts: opts, pairs: make(map[pairKey]*pair.Pair)}
}

// PairAddress derives the address of the pair for two assets given in any order.
func (r *Registry) PairAddress(tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := quote.SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return pairAddress(r.opts.Address, token0, token1), nil
}

func pairAddress(factory, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(token0.Bytes(), token1.Bytes())
	return crypto.CreateAddress2(factory, salt, PairCodeHash.Bytes())
}

// CreatePair creates the pair for two assets given in any order.
func (r *Registry) CreatePair(tokenA, tokenB token.Token) (*pair.Pair, error) {
	return r.create(tokenA, tokenB, nil)
}

// RestorePair registers a pair rebuilt from a persisted record.
func (r *Registry) RestorePair(tokenA, tokenB token.Token, state model.PairState) (*pair.Pair, error) {
	return r.create(tokenA, tokenB, &state)
}

func (r *Registry) create(tokenA, tokenB token.Token, state *model.PairState) (*pair.Pair, error) {
	token0, token1, err := quote.SortTokens(tokenA.Address(), tokenB.Address())
	if err != nil {
		return nil, err
	}
	if token0 != tokenA.Address() {
		tokenA, tokenB = tokenB, tokenA
	}
	key := pairKey{token0: token0, token1: token1}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPairExists, token0.Hex(), token1.Hex())
	}

	cfg := pair.Config{
		Address:   pairAddress(r.opts.Address, token0, token1),
		TokenA:    tokenA,
		TokenB:    tokenB,
		FeeSwitch: r,
		Callees:   r.opts.Callees,
		Journal:   r.opts.Journal,
		Sink:      r.opts.Sink,
		Clock:     r.opts.Clock,
		Logger:    r.opts.Logger,
	}
	var p *pair.Pair
	if state != nil {
		p, err = pair.Restore(cfg, *state)
	} else {
		p, err = pair.New(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create pair: %w", err)
	}
	r.pairs[key] = p
	r.all = append(r.all, p)
	r.opts.Logger.Info("pair created",
		zap.String("pair", cfg.Address.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
		zap.Int("pairs", len(r.all)),
	)
	return p, nil
}

// GetPair looks up the pair for two assets given in any order.
func (r *Registry) GetPair(tokenA, tokenB common.Address) (*pair.Pair, bool) {
	token0, token1, err := quote.SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	p, ok := r.pairs[pairKey{token0: token0, token1: token1}]
	r.mu.RUnlock()
	return p, ok
}

// AllPairs returns the pairs in creation order.
func (r *Registry) AllPairs() []*pair.Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*pair.Pair, len(r.all))
	copy(out, r.all)
	return out
}

func (r *Registry) FeeTo() common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.feeTo
}

// SetFeeTo turns the protocol fee on for every pair, or off with the zero address.
func (r *Registry) SetFeeTo(to common.Address) {
	r.mu.Lock()
	r.feeTo = to
	r.mu.Unlock()
}

// Reserves returns the reserves of the pair for tokenIn and tokenOut,
// oriented in the trade direction.
func (r *Registry) Reserves(_ context.Context, tokenIn, tokenOut common.Address) (*uint256.Int, *uint256.Int, error) {
	p, ok := r.GetPair(tokenIn, tokenOut)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, tokenIn.Hex(), tokenOut.Hex())
	}
	reserveA, reserveB, _ := p.Reserves()
	if p.TokenA().Address() == tokenIn {
		return reserveA, reserveB, nil
	}
	return reserveB, reserveA, nil
}
