// Package pair implements the constant-product pool engine: liquidity
// shares, fee-adjusted swaps with optimistic transfers and a swap callback,
// and the cumulative price accumulator updated on every reserve change.
//
// Amounts are never passed in. Mint and swap infer what was paid by comparing
// the pair's live balances with its recorded reserves, and burn redeems the
// shares the pair itself holds, so callers transfer first and call second.
package pair

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairEngine/internal/model"
	"pairEngine/internal/oracle"
	"pairEngine/internal/token"
	"pairEngine/internal/uq"
)

const (
	// MinimumLiquidity shares are locked at the burn address on the first mint.
	MinimumLiquidity = 1000

	// FeeDenominator and FeeNumerator encode the 0.3% swap fee:
	// balances are scaled by 1000 and 3 of every 1000 input units are excluded.
	FeeDenominator = 1000
	FeeNumerator   = 3
)

type lockState uint32

const (
	idle lockState = iota
	inProgress
)

// FeeSwitch reports where protocol fees go. The zero address turns them off.
type FeeSwitch interface {
	FeeTo() common.Address
}

// Journal is a revertible view of asset balances. When set, a failed
// operation rolls back every transfer it made.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// EventSink receives events after each successful operation.
type EventSink interface {
	Emit(event model.Event)
}

// Config wires a pair to its collaborators.
type Config struct {
	Address   common.Address
	TokenA    token.Token
	TokenB    token.Token
	FeeSwitch FeeSwitch
	Callees   CalleeResolver
	Journal   Journal
	Sink      EventSink
	Clock     oracle.Clock
	Logger    *zap.Logger
}

// Pair is one constant-product pool. Mutating operations are expected to be
// serialized by the host; concurrent or reentrant entry is rejected with
// ErrLocked. Read accessors are safe to call at any time.
type Pair struct {
	address   common.Address
	tokenA    token.Token
	tokenB    token.Token
	feeSwitch FeeSwitch
	callees   CalleeResolver
	journal   Journal
	sink      EventSink
	clock     oracle.Clock
	logger    *zap.Logger

	status atomic.Uint32

	mu       sync.RWMutex
	reserveA uint256.Int
	reserveB uint256.Int
	acc      oracle.Accumulator
	kLast    uint256.Int
	shares   *shareLedger
}

// New creates an empty pair. TokenA must sort before TokenB.
func New(cfg Config) (*Pair, error) {
	if cfg.TokenA == nil || cfg.TokenB == nil {
		return nil, fmt.Errorf("pair: both tokens are required")
	}
	switch bytes.Compare(cfg.TokenA.Address().Bytes(), cfg.TokenB.Address().Bytes()) {
	case 0:
		return nil, ErrIdenticalTokens
	case 1:
		return nil, ErrUnsortedTokens
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = oracle.SystemClock
	}

	return &Pair{
		address:   cfg.Address,
		tokenA:    cfg.TokenA,
		tokenB:    cfg.TokenB,
		feeSwitch: cfg.FeeSwitch,
		callees:   cfg.Callees,
		journal:   cfg.Journal,
		sink:      cfg.Sink,
		clock:     clock,
		logger:    logger.With(zap.String("pair", cfg.Address.Hex())),
		shares:    newShareLedger(),
	}, nil
}

// Restore rebuilds a pair from a persisted record.
func Restore(cfg Config, state model.PairState) (*Pair, error) {
	if cfg.Address != state.Address {
		return nil, fmt.Errorf("pair: state address %s does not match %s", state.Address.Hex(), cfg.Address.Hex())
	}
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if p.tokenA.Address() != state.TokenA || p.tokenB.Address() != state.TokenB {
		return nil, fmt.Errorf("pair: state tokens do not match config")
	}

	fields := []struct {
		name string
		dst  *uint256.Int
		src  string
	}{
		{"reserve_a", &p.reserveA, state.ReserveA},
		{"reserve_b", &p.reserveB, state.ReserveB},
		{"price_a_cumulative", &p.acc.PriceACumulative, state.PriceACumulative},
		{"price_b_cumulative", &p.acc.PriceBCumulative, state.PriceBCumulative},
		{"k_last", &p.kLast, state.KLast},
	}
	for _, f := range fields {
		if err := parseAmount(f.dst, f.src); err != nil {
			return nil, fmt.Errorf("pair: restore %s: %w", f.name, err)
		}
	}
	if !uq.Fits(&p.reserveA) || !uq.Fits(&p.reserveB) {
		return nil, ErrOverflow
	}
	p.acc.Timestamp = state.BlockTimestampLast

	var sum uint256.Int
	for holder, amount := range state.Shares {
		var v uint256.Int
		if err := parseAmount(&v, amount); err != nil {
			return nil, fmt.Errorf("pair: restore shares of %s: %w", holder.Hex(), err)
		}
		p.shares.mint(holder, &v)
		sum.Add(&sum, &v)
	}
	var total uint256.Int
	if err := parseAmount(&total, state.TotalSupply); err != nil {
		return nil, fmt.Errorf("pair: restore total_supply: %w", err)
	}
	if len(state.Shares) > 0 && !sum.Eq(&total) {
		return nil, fmt.Errorf("pair: share balances sum to %s, total supply is %s", sum.Dec(), total.Dec())
	}
	p.shares.total = total
	return p, nil
}

func parseAmount(dst *uint256.Int, src string) error {
	if src == "" {
		dst.Clear()
		return nil
	}
	return dst.SetFromDecimal(src)
}

func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) TokenA() token.Token     { return p.tokenA }
func (p *Pair) TokenB() token.Token     { return p.tokenB }

// Reserves returns the reserves and the timestamp of the last update.
func (p *Pair) Reserves() (reserveA, reserveB *uint256.Int, timestampLast uint32) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserveA.Clone(), p.reserveB.Clone(), p.acc.Timestamp
}

// Accumulator returns the stored cumulative prices.
func (p *Pair) Accumulator() oracle.Accumulator {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.acc
}

// Observe returns the cumulative prices as they would read at now, extending
// the stored values with the current reserves without writing anything.
func (p *Pair) Observe(now uint32) (oracle.Accumulator, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return oracle.Advance(p.acc, &p.reserveA, &p.reserveB, now)
}

func (p *Pair) TotalSupply() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shares.total.Clone()
}

func (p *Pair) SharesOf(account common.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shares.balanceOf(account)
}

func (p *Pair) KLast() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.kLast.Clone()
}

// Snapshot returns the persisted record of the pair.
func (p *Pair) Snapshot() model.PairState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	shares := make(map[common.Address]string, len(p.shares.balances))
	for holder, bal := range p.shares.balances {
		shares[holder] = bal.Dec()
	}
	return model.PairState{
		Address:            p.address,
		TokenA:             p.tokenA.Address(),
		TokenB:             p.tokenB.Address(),
		ReserveA:           p.reserveA.Dec(),
		ReserveB:           p.reserveB.Dec(),
		BlockTimestampLast: p.acc.Timestamp,
		PriceACumulative:   p.acc.PriceACumulative.Dec(),
		PriceBCumulative:   p.acc.PriceBCumulative.Dec(),
		KLast:              p.kLast.Dec(),
		TotalSupply:        p.shares.total.Dec(),
		Shares:             shares,
	}
}
