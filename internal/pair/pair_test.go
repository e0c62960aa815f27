package pair

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"pairEngine/internal/model"
	"pairEngine/internal/quote"
	"pairEngine/internal/token"
)

var (
	addrA    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrB    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	pairAddr = common.HexToAddress("0x0000000000000000000000000000000000001000")
	alice    = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	borrower = common.HexToAddress("0x000000000000000000000000000000000000f1a5")
	feeSink  = common.HexToAddress("0x000000000000000000000000000000000000fee0")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type recorder struct{ events []model.Event }

func (r *recorder) Emit(e model.Event) { r.events = append(r.events, e) }

func (r *recorder) names() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventName())
	}
	return out
}

type feeSwitch struct{ to common.Address }

func (f *feeSwitch) FeeTo() common.Address { return f.to }

type fixture struct {
	ledger  *token.Ledger
	tokenA  token.Token
	tokenB  token.Token
	callees *Callees
	fee     *feeSwitch
	sink    *recorder
	now     uint32
	pair    *Pair
}

type fixtureOption func(*fixture)

func newFixture(t require.TestingT, opts ...fixtureOption) *fixture {
	ledger := token.NewLedger()
	f := &fixture{
		ledger:  ledger,
		tokenA:  token.NewStandard(ledger, addrA),
		tokenB:  token.NewStandard(ledger, addrB),
		callees: NewCallees(),
		fee:     &feeSwitch{},
		sink:    &recorder{},
		now:     1_000,
	}
	for _, opt := range opts {
		opt(f)
	}
	p, err := New(f.config())
	require.NoError(t, err)
	f.pair = p
	return f
}

func (f *fixture) config() Config {
	return Config{
		Address:   pairAddr,
		TokenA:    f.tokenA,
		TokenB:    f.tokenB,
		FeeSwitch: f.fee,
		Callees:   f.callees,
		Journal:   f.ledger,
		Sink:      f.sink,
		Clock:     func() uint32 { return f.now },
	}
}

// seed sets the reserves directly by funding the pair and syncing.
func (f *fixture) seed(t require.TestingT, reserveA, reserveB uint64) {
	f.ledger.Mint(addrA, pairAddr, u(reserveA))
	f.ledger.Mint(addrB, pairAddr, u(reserveB))
	require.NoError(t, f.pair.Sync())
}

func (f *fixture) deposit(tokenAddr common.Address, amount uint64) {
	f.ledger.Mint(tokenAddr, pairAddr, u(amount))
}

func (f *fixture) requireReserves(t *testing.T, wantA, wantB uint64) {
	t.Helper()
	a, b, _ := f.pair.Reserves()
	require.Equal(t, wantA, a.Uint64(), "reserve a")
	require.Equal(t, wantB, b.Uint64(), "reserve b")
}

func TestNewRejectsBadTokenOrder(t *testing.T) {
	ledger := token.NewLedger()
	_, err := New(Config{TokenA: token.NewStandard(ledger, addrB), TokenB: token.NewStandard(ledger, addrA)})
	require.ErrorIs(t, err, ErrUnsortedTokens)
	_, err = New(Config{TokenA: token.NewStandard(ledger, addrA), TokenB: token.NewStandard(ledger, addrA)})
	require.ErrorIs(t, err, ErrIdenticalTokens)
	_, err = New(Config{TokenA: token.NewStandard(ledger, addrA)})
	require.Error(t, err)
}

func TestMintBootstrapLocksMinimumLiquidity(t *testing.T) {
	f := newFixture(t)
	f.deposit(addrA, 2000)
	f.deposit(addrB, 2000)

	liquidity, err := f.pair.Mint(alice, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), liquidity.Uint64())
	require.Equal(t, uint64(1000), f.pair.SharesOf(alice).Uint64())
	require.Equal(t, uint64(MinimumLiquidity), f.pair.SharesOf(BurnAddress).Uint64())
	require.Equal(t, uint64(2000), f.pair.TotalSupply().Uint64())
	f.requireReserves(t, 2000, 2000)

	require.Equal(t, []string{model.EventSync, model.EventMint}, f.sink.names())
	mint := f.sink.events[1].(model.MintEvent)
	require.Equal(t, "2000", mint.AmountA)
	require.Equal(t, "2000", mint.AmountB)
	require.Equal(t, alice, mint.Sender)
}

func TestMintBootstrapTooSmall(t *testing.T) {
	f := newFixture(t)
	f.deposit(addrA, 1000)
	f.deposit(addrB, 1000)

	_, err := f.pair.Mint(alice, alice)
	require.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
	require.Equal(t, ClassInsufficient, Classify(err))
	f.requireReserves(t, 0, 0)
	require.True(t, f.pair.TotalSupply().IsZero())
	require.Empty(t, f.sink.events)
}

func TestMintUnbalancedDepositCreditsSmallerSide(t *testing.T) {
	f := newFixture(t)
	f.deposit(addrA, 2000)
	f.deposit(addrB, 2000)
	_, err := f.pair.Mint(alice, alice)
	require.NoError(t, err)

	f.deposit(addrA, 1000)
	f.deposit(addrB, 500)
	liquidity, err := f.pair.Mint(bob, bob)
	require.NoError(t, err)
	require.Equal(t, uint64(500), liquidity.Uint64())
	f.requireReserves(t, 3000, 2500)

	_, err = f.pair.Mint(bob, bob)
	require.ErrorIs(t, err, ErrInsufficientLiquidityMinted)
}

func TestSwapScenario(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)

	out, err := quote.GetAmountOut(u(100), u(1000), u(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(90), out.Uint64())

	f.deposit(addrA, 100)
	require.NoError(t, f.pair.Swap(alice, nil, out, alice, nil))
	f.requireReserves(t, 1100, 910)
	require.Equal(t, uint64(90), f.ledger.Balance(addrB, alice).Uint64())

	a, b, _ := f.pair.Reserves()
	product := new(uint256.Int).Mul(a, b)
	require.Equal(t, uint64(1_001_000), product.Uint64())

	swap := f.sink.events[len(f.sink.events)-1].(model.SwapEvent)
	require.Equal(t, "100", swap.AmountAIn)
	require.Equal(t, "0", swap.AmountBIn)
	require.Equal(t, "0", swap.AmountAOut)
	require.Equal(t, "90", swap.AmountBOut)
	require.Equal(t, alice, swap.To)
}

func TestSwapOneUnitTooManyViolatesInvariant(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)
	events := len(f.sink.events)

	f.deposit(addrA, 100)
	err := f.pair.Swap(alice, u(0), u(91), alice, nil)
	require.ErrorIs(t, err, ErrK)
	require.Equal(t, ClassInvariant, Classify(err))

	f.requireReserves(t, 1000, 1000)
	require.True(t, f.ledger.Balance(addrB, alice).IsZero(), "optimistic transfer must be rolled back")
	require.Equal(t, uint64(1000), f.ledger.Balance(addrB, pairAddr).Uint64())
	require.Len(t, f.sink.events, events)
}

func TestSwapRejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)

	err := f.pair.Swap(alice, u(0), u(0), alice, nil)
	require.ErrorIs(t, err, ErrInsufficientOutputAmount)

	err = f.pair.Swap(alice, u(0), u(1000), alice, nil)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	err = f.pair.Swap(alice, u(1000), u(0), alice, nil)
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	err = f.pair.Swap(alice, u(0), u(10), addrA, nil)
	require.ErrorIs(t, err, ErrInvalidTo)

	err = f.pair.Swap(alice, u(0), u(10), alice, nil)
	require.ErrorIs(t, err, ErrInsufficientInputAmount)
	require.True(t, f.ledger.Balance(addrB, alice).IsZero())

	f.deposit(addrA, 100)
	err = f.pair.Swap(alice, u(0), u(10), borrower, []byte{1})
	require.ErrorIs(t, err, ErrNoCallee)
	f.requireReserves(t, 1000, 1000)
}

func TestSwapBothOutputs(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 10_000, 10_000)

	f.deposit(addrA, 1000)
	f.deposit(addrB, 1000)
	require.NoError(t, f.pair.Swap(alice, u(500), u(500), alice, nil))
	f.requireReserves(t, 10_500, 10_500)
	swap := f.sink.events[len(f.sink.events)-1].(model.SwapEvent)
	// in = balance - (reserve - out) = 10500 - 9500 on each side
	require.Equal(t, "1000", swap.AmountAIn)
	require.Equal(t, "1000", swap.AmountBIn)
}

func TestSwapBothOutputsUnderpaid(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 10_000, 10_000)

	f.deposit(addrA, 1)
	f.deposit(addrB, 1)
	err := f.pair.Swap(alice, u(500), u(500), alice, nil)
	require.ErrorIs(t, err, ErrK)
	require.Equal(t, ClassInvariant, Classify(err))
	f.requireReserves(t, 10_000, 10_000)
	require.True(t, f.ledger.Balance(addrA, alice).IsZero())
	require.True(t, f.ledger.Balance(addrB, alice).IsZero())
}

func TestFlashSwapRepaidInCallback(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)
	f.ledger.Mint(addrB, borrower, u(1))

	var got struct {
		sender     common.Address
		aOut, bOut uint64
		data       []byte
	}
	f.callees.Register(borrower, SwapCalleeFunc(func(sender common.Address, aOut, bOut *uint256.Int, data []byte) error {
		got.sender, got.aOut, got.bOut, got.data = sender, aOut.Uint64(), bOut.Uint64(), data
		return token.SafeTransfer(f.tokenB, borrower, pairAddr, u(101))
	}))

	require.NoError(t, f.pair.Swap(alice, u(0), u(100), borrower, []byte("flash")))
	require.Equal(t, alice, got.sender)
	require.Equal(t, uint64(0), got.aOut)
	require.Equal(t, uint64(100), got.bOut)
	require.Equal(t, []byte("flash"), got.data)
	f.requireReserves(t, 1000, 1001)
	require.True(t, f.ledger.Balance(addrB, borrower).IsZero())
}

func TestFlashSwapUnderRepaidRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)
	f.ledger.Mint(addrB, borrower, u(1))

	f.callees.Register(borrower, SwapCalleeFunc(func(common.Address, *uint256.Int, *uint256.Int, []byte) error {
		return token.SafeTransfer(f.tokenB, borrower, pairAddr, u(100))
	}))

	err := f.pair.Swap(alice, u(0), u(100), borrower, []byte{1})
	require.ErrorIs(t, err, ErrK)
	f.requireReserves(t, 1000, 1000)
	require.Equal(t, uint64(1), f.ledger.Balance(addrB, borrower).Uint64())
	require.Equal(t, uint64(1000), f.ledger.Balance(addrB, pairAddr).Uint64())
}

func TestCallbackErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)

	boom := errors.New("boom")
	f.callees.Register(borrower, SwapCalleeFunc(func(common.Address, *uint256.Int, *uint256.Int, []byte) error {
		return boom
	}))
	err := f.pair.Swap(alice, u(0), u(100), borrower, []byte{1})
	require.ErrorIs(t, err, boom)
	require.Equal(t, ClassUnknown, Classify(err))
	require.True(t, f.ledger.Balance(addrB, borrower).IsZero())
	f.requireReserves(t, 1000, 1000)
}

func TestReentrantCallsAreRejected(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)
	f.ledger.Mint(addrB, borrower, u(1))

	var nested []error
	f.callees.Register(borrower, SwapCalleeFunc(func(common.Address, *uint256.Int, *uint256.Int, []byte) error {
		nested = append(nested, f.pair.Swap(borrower, u(1), u(0), borrower, nil))
		_, err := f.pair.Mint(borrower, borrower)
		nested = append(nested, err)
		_, _, err = f.pair.Burn(borrower, borrower)
		nested = append(nested, err)
		nested = append(nested, f.pair.Skim(borrower))
		nested = append(nested, f.pair.Sync())
		return token.SafeTransfer(f.tokenB, borrower, pairAddr, u(101))
	}))

	require.NoError(t, f.pair.Swap(alice, u(0), u(100), borrower, []byte{1}))
	require.Len(t, nested, 5)
	for i, err := range nested {
		require.ErrorIs(t, err, ErrLocked, "nested call %d", i)
		require.Equal(t, ClassReentrancy, Classify(err))
	}
	f.requireReserves(t, 1000, 1001)

	// the guard is released afterwards
	require.NoError(t, f.pair.Sync())
}

func TestSilentTokens(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.tokenA = token.NewSilent(f.ledger, addrA)
		f.tokenB = token.NewSilent(f.ledger, addrB)
	})
	f.seed(t, 1000, 1000)

	f.deposit(addrA, 100)
	require.NoError(t, f.pair.Swap(alice, u(0), u(90), alice, nil))
	f.requireReserves(t, 1100, 910)
}

// rejectingToken reports false for every outgoing transfer.
type rejectingToken struct {
	*token.Standard
}

func (rejectingToken) Transfer(common.Address, common.Address, *uint256.Int) ([]byte, error) {
	return token.EncodeResult(false)
}

func TestRejectedTransferAborts(t *testing.T) {
	f := newFixture(t, func(f *fixture) {
		f.tokenB = rejectingToken{token.NewStandard(f.ledger, addrB)}
	})
	f.seed(t, 1000, 1000)

	f.deposit(addrA, 100)
	err := f.pair.Swap(alice, u(0), u(90), alice, nil)
	require.ErrorIs(t, err, token.ErrTransferFailed)
	require.Equal(t, ClassTransfer, Classify(err))
	f.requireReserves(t, 1000, 1000)
}

func TestBurnRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.deposit(addrA, 2000)
	f.deposit(addrB, 2000)
	_, err := f.pair.Mint(alice, alice)
	require.NoError(t, err)

	_, _, err = f.pair.Burn(alice, alice)
	require.ErrorIs(t, err, ErrInsufficientLiquidityBurned)

	require.ErrorIs(t, f.pair.TransferShares(alice, pairAddr, u(1001)), ErrInsufficientShares)
	require.ErrorIs(t, f.pair.TransferShares(BurnAddress, alice, u(1)), ErrLockedShares)
	require.NoError(t, f.pair.TransferShares(alice, pairAddr, u(1000)))

	amountA, amountB, err := f.pair.Burn(alice, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), amountA.Uint64())
	require.Equal(t, uint64(1000), amountB.Uint64())
	require.Equal(t, uint64(1000), f.ledger.Balance(addrA, alice).Uint64())
	require.Equal(t, uint64(1000), f.ledger.Balance(addrB, alice).Uint64())
	require.Equal(t, uint64(MinimumLiquidity), f.pair.TotalSupply().Uint64())
	require.True(t, f.pair.SharesOf(pairAddr).IsZero())
	f.requireReserves(t, 1000, 1000)

	names := f.sink.names()
	require.Equal(t, []string{model.EventSync, model.EventBurn}, names[len(names)-2:])
	burn := f.sink.events[len(f.sink.events)-1].(model.BurnEvent)
	require.Equal(t, alice, burn.To)
}

func TestBurnIncludesAccruedFees(t *testing.T) {
	f := newFixture(t)
	f.deposit(addrA, 10_000)
	f.deposit(addrB, 10_000)
	_, err := f.pair.Mint(alice, alice)
	require.NoError(t, err)

	out, err := quote.GetAmountOut(u(1000), u(10_000), u(10_000))
	require.NoError(t, err)
	f.deposit(addrA, 1000)
	require.NoError(t, f.pair.Swap(bob, u(0), out, bob, nil))

	require.NoError(t, f.pair.TransferShares(alice, pairAddr, f.pair.SharesOf(alice)))
	amountA, amountB, err := f.pair.Burn(alice, alice)
	require.NoError(t, err)
	// 9000 of 10000 shares: 90% of the post-trade balances
	require.Equal(t, uint64(9900), amountA.Uint64())
	wantB := (10_000 - out.Uint64()) * 9 / 10
	require.Equal(t, wantB, amountB.Uint64())
}

func TestProtocolFee(t *testing.T) {
	f := newFixture(t)
	f.fee.to = feeSink

	f.deposit(addrA, 1_000_000_000)
	f.deposit(addrB, 1_000_000_000)
	_, err := f.pair.Mint(alice, alice)
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", f.pair.KLast().Dec())

	out, err := quote.GetAmountOut(u(1_000_000_000), u(1_000_000_000), u(1_000_000_000))
	require.NoError(t, err)
	f.deposit(addrA, 1_000_000_000)
	require.NoError(t, f.pair.Swap(bob, u(0), out, bob, nil))

	reserveA, reserveB, _ := f.pair.Reserves()
	totalBefore := f.pair.TotalSupply()

	require.NoError(t, f.pair.TransferShares(alice, pairAddr, u(1000)))
	_, _, err = f.pair.Burn(alice, alice)
	require.NoError(t, err)

	// expected fee shares: total * (rootK - rootKLast) / (5*rootK + rootKLast)
	k := new(big.Int).Mul(reserveA.ToBig(), reserveB.ToBig())
	rootK := new(big.Int).Sqrt(k)
	rootKLast := big.NewInt(1_000_000_000)
	num := new(big.Int).Mul(totalBefore.ToBig(), new(big.Int).Sub(rootK, rootKLast))
	den := new(big.Int).Add(new(big.Int).Mul(rootK, big.NewInt(5)), rootKLast)
	want := new(big.Int).Div(num, den)
	require.Positive(t, want.Sign())
	require.Equal(t, want.String(), f.pair.SharesOf(feeSink).Dec())

	ra, rb, _ := f.pair.Reserves()
	require.Equal(t, new(uint256.Int).Mul(ra, rb).Dec(), f.pair.KLast().Dec())

	// switching the fee off clears kLast on the next liquidity event
	f.fee.to = common.Address{}
	require.NoError(t, f.pair.TransferShares(alice, pairAddr, u(1000)))
	_, _, err = f.pair.Burn(alice, alice)
	require.NoError(t, err)
	require.True(t, f.pair.KLast().IsZero())
}

func TestAccumulatorFollowsReserves(t *testing.T) {
	f := newFixture(t)
	f.now = 100
	f.seed(t, 1000, 2000)
	acc := f.pair.Accumulator()
	require.Equal(t, uint32(100), acc.Timestamp)
	require.True(t, acc.PriceACumulative.IsZero())

	f.now = 110
	f.deposit(addrA, 100)
	out, err := quote.GetAmountOut(u(100), u(1000), u(2000))
	require.NoError(t, err)
	require.NoError(t, f.pair.Swap(alice, nil, out, alice, nil))

	acc = f.pair.Accumulator()
	require.Equal(t, uint32(110), acc.Timestamp)
	// price of A in B was 2 for 10 seconds, price of B in A was 1/2
	wantA := new(uint256.Int).Lsh(u(20), 112)
	wantB := new(uint256.Int).Lsh(u(5), 112)
	require.True(t, wantA.Eq(&acc.PriceACumulative), "got %s", acc.PriceACumulative.Dec())
	require.True(t, wantB.Eq(&acc.PriceBCumulative), "got %s", acc.PriceBCumulative.Dec())

	observed, err := f.pair.Observe(120)
	require.NoError(t, err)
	require.Equal(t, uint32(120), observed.Timestamp)
	require.True(t, observed.PriceACumulative.Gt(&acc.PriceACumulative))
	require.Equal(t, uint32(110), f.pair.Accumulator().Timestamp, "observe must not write")

	// same-second updates leave the accumulator alone
	f.deposit(addrA, 100)
	require.NoError(t, f.pair.Sync())
	require.Equal(t, acc, f.pair.Accumulator())
}

func TestSkim(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1000, 1000)
	f.deposit(addrA, 50)

	require.NoError(t, f.pair.Skim(bob))
	require.Equal(t, uint64(50), f.ledger.Balance(addrA, bob).Uint64())
	require.True(t, f.ledger.Balance(addrB, bob).IsZero())
	f.requireReserves(t, 1000, 1000)
}

func TestSyncRejectsOverflow(t *testing.T) {
	f := newFixture(t)
	tooBig := new(uint256.Int).Lsh(u(1), 112)
	f.ledger.Mint(addrA, pairAddr, tooBig)
	f.ledger.Mint(addrB, pairAddr, u(1))

	err := f.pair.Sync()
	require.ErrorIs(t, err, ErrOverflow)
	f.requireReserves(t, 0, 0)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	f.fee.to = feeSink
	f.deposit(addrA, 5000)
	f.deposit(addrB, 8000)
	_, err := f.pair.Mint(alice, alice)
	require.NoError(t, err)
	f.now += 30
	f.deposit(addrA, 500)
	out, err := quote.GetAmountOut(u(500), u(5000), u(8000))
	require.NoError(t, err)
	require.NoError(t, f.pair.Swap(bob, nil, out, bob, nil))

	state := f.pair.Snapshot()
	restored, err := Restore(f.config(), state)
	require.NoError(t, err)
	require.Equal(t, state, restored.Snapshot())

	bad := state
	bad.TotalSupply = "1"
	_, err = Restore(f.config(), bad)
	require.Error(t, err)

	cfg := f.config()
	cfg.Address = bob
	_, err = Restore(cfg, state)
	require.Error(t, err)
}

func TestCalleesUnregister(t *testing.T) {
	c := NewCallees()
	c.Register(borrower, SwapCalleeFunc(func(common.Address, *uint256.Int, *uint256.Int, []byte) error { return nil }))
	_, ok := c.Callee(borrower)
	require.True(t, ok)
	c.Unregister(borrower)
	_, ok = c.Callee(borrower)
	require.False(t, ok)
}
