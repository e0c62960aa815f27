package pair

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairEngine/internal/model"
	"pairEngine/internal/oracle"
	"pairEngine/internal/token"
	"pairEngine/internal/uq"
)

// Mint issues shares for the assets transferred into the pair since the
// last reserve update and credits them to to. The first mint locks
// MinimumLiquidity shares at BurnAddress; later mints credit the smaller of
// the two proportional amounts, so an unbalanced deposit donates its excess
// to existing holders.
func (p *Pair) Mint(sender, to common.Address) (*uint256.Int, error) {
	release, err := p.enter()
	if err != nil {
		return nil, p.fail("mint", err)
	}
	defer release()

	var (
		liquidity        *uint256.Int
		amountA, amountB *uint256.Int
		balanceA         *uint256.Int
		balanceB         *uint256.Int
	)
	err = p.atomically(func() error {
		reserveA, reserveB := p.reserveA.Clone(), p.reserveB.Clone()

		var err error
		balanceA, balanceB, err = p.balances()
		if err != nil {
			return err
		}
		amountA = inferredContribution(balanceA, reserveA)
		amountB = inferredContribution(balanceB, reserveB)

		fee, err := p.accrueProtocolFee(reserveA, reserveB)
		if err != nil {
			return err
		}
		totalSupply := new(uint256.Int).Add(&p.shares.total, fee.owed)

		bootstrap := totalSupply.IsZero()
		if bootstrap {
			liquidity, err = initialShares(amountA, amountB)
		} else {
			liquidity, err = proportionalShares(amountA, amountB, reserveA, reserveB, totalSupply)
		}
		if err != nil {
			return err
		}
		if liquidity.IsZero() {
			return ErrInsufficientLiquidityMinted
		}

		acc, err := p.advance(balanceA, balanceB, reserveA, reserveB)
		if err != nil {
			return err
		}

		p.mu.Lock()
		if bootstrap {
			p.shares.mint(BurnAddress, uint256.NewInt(MinimumLiquidity))
		}
		p.shares.mint(to, liquidity)
		p.commit(balanceA, balanceB, acc)
		p.settleProtocolFee(fee)
		p.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, p.fail("mint", err, zap.String("sender", sender.Hex()))
	}

	p.emit(
		p.syncEvent(balanceA, balanceB),
		model.MintEvent{Pair: p.address, Sender: sender, AmountA: amountA.Dec(), AmountB: amountB.Dec()},
	)
	p.logger.Debug("mint",
		zap.String("sender", sender.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
		zap.String("liquidity", liquidity.Dec()),
	)
	return liquidity, nil
}

// Burn redeems the shares held by the pair itself and sends the pro-rata
// share of the live balances, fees included, to to.
func (p *Pair) Burn(sender, to common.Address) (amountA, amountB *uint256.Int, err error) {
	release, err := p.enter()
	if err != nil {
		return nil, nil, p.fail("burn", err)
	}
	defer release()

	var balanceA, balanceB *uint256.Int
	err = p.atomically(func() error {
		reserveA, reserveB := p.reserveA.Clone(), p.reserveB.Clone()

		var err error
		balanceA, balanceB, err = p.balances()
		if err != nil {
			return err
		}
		p.mu.RLock()
		liquidity := p.shares.balanceOf(p.address)
		p.mu.RUnlock()

		fee, err := p.accrueProtocolFee(reserveA, reserveB)
		if err != nil {
			return err
		}
		totalSupply := new(uint256.Int).Add(&p.shares.total, fee.owed)
		if totalSupply.IsZero() {
			return ErrInsufficientLiquidityBurned
		}

		if amountA, err = mulDiv(liquidity, balanceA, totalSupply); err != nil {
			return err
		}
		if amountB, err = mulDiv(liquidity, balanceB, totalSupply); err != nil {
			return err
		}
		if amountA.IsZero() || amountB.IsZero() {
			return ErrInsufficientLiquidityBurned
		}

		if err := token.SafeTransfer(p.tokenA, p.address, to, amountA); err != nil {
			return err
		}
		if err := token.SafeTransfer(p.tokenB, p.address, to, amountB); err != nil {
			return err
		}

		balanceA, balanceB, err = p.balances()
		if err != nil {
			return err
		}
		acc, err := p.advance(balanceA, balanceB, reserveA, reserveB)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.shares.burn(p.address, liquidity)
		p.commit(balanceA, balanceB, acc)
		p.settleProtocolFee(fee)
		p.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, nil, p.fail("burn", err, zap.String("sender", sender.Hex()))
	}

	p.emit(
		p.syncEvent(balanceA, balanceB),
		model.BurnEvent{Pair: p.address, Sender: sender, AmountA: amountA.Dec(), AmountB: amountB.Dec(), To: to},
	)
	p.logger.Debug("burn",
		zap.String("sender", sender.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
	)
	return amountA, amountB, nil
}

// Swap sends the requested outputs to to before anything is paid, runs the
// recipient's SwapCallee when data is non-empty, and only then infers the
// inputs from the balances and checks the fee-adjusted invariant. Both
// outputs may be non-zero; at least one must be.
func (p *Pair) Swap(sender common.Address, amountAOut, amountBOut *uint256.Int, to common.Address, data []byte) error {
	release, err := p.enter()
	if err != nil {
		return p.fail("swap", err)
	}
	defer release()

	if amountAOut == nil {
		amountAOut = new(uint256.Int)
	}
	if amountBOut == nil {
		amountBOut = new(uint256.Int)
	}
	if amountAOut.IsZero() && amountBOut.IsZero() {
		return p.fail("swap", ErrInsufficientOutputAmount)
	}

	var balanceA, balanceB, amountAIn, amountBIn *uint256.Int
	err = p.atomically(func() error {
		reserveA, reserveB := p.reserveA.Clone(), p.reserveB.Clone()
		if !amountAOut.Lt(reserveA) || !amountBOut.Lt(reserveB) {
			return ErrInsufficientLiquidity
		}
		if to == p.tokenA.Address() || to == p.tokenB.Address() {
			return ErrInvalidTo
		}

		if !amountAOut.IsZero() {
			if err := token.SafeTransfer(p.tokenA, p.address, to, amountAOut); err != nil {
				return err
			}
		}
		if !amountBOut.IsZero() {
			if err := token.SafeTransfer(p.tokenB, p.address, to, amountBOut); err != nil {
				return err
			}
		}
		if len(data) > 0 {
			if err := p.callback(sender, amountAOut, amountBOut, to, data); err != nil {
				return err
			}
		}

		var err error
		balanceA, balanceB, err = p.balances()
		if err != nil {
			return err
		}
		amountAIn = inferredContribution(balanceA, new(uint256.Int).Sub(reserveA, amountAOut))
		amountBIn = inferredContribution(balanceB, new(uint256.Int).Sub(reserveB, amountBOut))
		if amountAIn.IsZero() && amountBIn.IsZero() {
			return ErrInsufficientInputAmount
		}
		if !uq.Fits(balanceA) || !uq.Fits(balanceB) {
			return ErrOverflow
		}
		if err := checkInvariant(balanceA, balanceB, amountAIn, amountBIn, reserveA, reserveB); err != nil {
			return err
		}

		acc, err := p.advance(balanceA, balanceB, reserveA, reserveB)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.commit(balanceA, balanceB, acc)
		p.mu.Unlock()
		return nil
	})
	if err != nil {
		return p.fail("swap", err,
			zap.String("sender", sender.Hex()),
			zap.String("amount_a_out", amountAOut.Dec()),
			zap.String("amount_b_out", amountBOut.Dec()),
		)
	}

	p.emit(
		p.syncEvent(balanceA, balanceB),
		model.SwapEvent{
			Pair:       p.address,
			Sender:     sender,
			AmountAIn:  amountAIn.Dec(),
			AmountBIn:  amountBIn.Dec(),
			AmountAOut: amountAOut.Dec(),
			AmountBOut: amountBOut.Dec(),
			To:         to,
		},
	)
	p.logger.Debug("swap",
		zap.String("sender", sender.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount_a_in", amountAIn.Dec()),
		zap.String("amount_b_in", amountBIn.Dec()),
		zap.String("amount_a_out", amountAOut.Dec()),
		zap.String("amount_b_out", amountBOut.Dec()),
	)
	return nil
}

// Skim sends any balance above the reserves to to.
func (p *Pair) Skim(to common.Address) error {
	release, err := p.enter()
	if err != nil {
		return p.fail("skim", err)
	}
	defer release()

	err = p.atomically(func() error {
		balanceA, balanceB, err := p.balances()
		if err != nil {
			return err
		}
		excessA := inferredContribution(balanceA, &p.reserveA)
		excessB := inferredContribution(balanceB, &p.reserveB)
		if !excessA.IsZero() {
			if err := token.SafeTransfer(p.tokenA, p.address, to, excessA); err != nil {
				return err
			}
		}
		if !excessB.IsZero() {
			if err := token.SafeTransfer(p.tokenB, p.address, to, excessB); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return p.fail("skim", err)
	}
	return nil
}

// Sync sets the reserves to the current balances.
func (p *Pair) Sync() error {
	release, err := p.enter()
	if err != nil {
		return p.fail("sync", err)
	}
	defer release()

	balanceA, balanceB, err := p.balances()
	if err != nil {
		return p.fail("sync", err)
	}
	acc, err := p.advance(balanceA, balanceB, &p.reserveA, &p.reserveB)
	if err != nil {
		return p.fail("sync", err)
	}
	p.mu.Lock()
	p.commit(balanceA, balanceB, acc)
	p.mu.Unlock()

	p.emit(p.syncEvent(balanceA, balanceB))
	return nil
}

func (p *Pair) enter() (func(), error) {
	if !p.status.CompareAndSwap(uint32(idle), uint32(inProgress)) {
		return nil, ErrLocked
	}
	return func() { p.status.Store(uint32(idle)) }, nil
}

func (p *Pair) atomically(fn func() error) error {
	if p.journal == nil {
		return fn()
	}
	snapshot := p.journal.Snapshot()
	if err := fn(); err != nil {
		p.journal.RevertToSnapshot(snapshot)
		return err
	}
	return nil
}

func (p *Pair) callback(sender common.Address, amountAOut, amountBOut *uint256.Int, to common.Address, data []byte) error {
	if p.callees == nil {
		return ErrNoCallee
	}
	callee, ok := p.callees.Callee(to)
	if !ok {
		return ErrNoCallee
	}
	if err := callee.OnSwap(sender, amountAOut.Clone(), amountBOut.Clone(), data); err != nil {
		return fmt.Errorf("swap callback: %w", err)
	}
	return nil
}

func (p *Pair) balances() (balanceA, balanceB *uint256.Int, err error) {
	balanceA, err = p.tokenA.BalanceOf(p.address)
	if err != nil {
		return nil, nil, fmt.Errorf("balance of token a: %w", err)
	}
	balanceB, err = p.tokenB.BalanceOf(p.address)
	if err != nil {
		return nil, nil, fmt.Errorf("balance of token b: %w", err)
	}
	return balanceA, balanceB, nil
}

// advance validates the new balances and extends the price accumulator
// with the reserves that held until now.
func (p *Pair) advance(balanceA, balanceB, reserveA, reserveB *uint256.Int) (oracle.Accumulator, error) {
	if !uq.Fits(balanceA) || !uq.Fits(balanceB) {
		return oracle.Accumulator{}, ErrOverflow
	}
	return oracle.Advance(p.acc, reserveA, reserveB, p.clock())
}

// commit writes new reserves and accumulator. Callers hold p.mu.
func (p *Pair) commit(balanceA, balanceB *uint256.Int, acc oracle.Accumulator) {
	p.reserveA.Set(balanceA)
	p.reserveB.Set(balanceB)
	p.acc = acc
}

func (p *Pair) syncEvent(reserveA, reserveB *uint256.Int) model.SyncEvent {
	return model.SyncEvent{Pair: p.address, ReserveA: reserveA.Dec(), ReserveB: reserveB.Dec()}
}

func (p *Pair) emit(events ...model.Event) {
	if p.sink == nil {
		return
	}
	for _, event := range events {
		p.sink.Emit(event)
	}
}

func (p *Pair) fail(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("class", Classify(err).String()), zap.Error(err))
	p.logger.Warn(op+" rejected", fields...)
	return err
}

// inferredContribution is what was paid into the pair beyond what it
// believed it held: balance - reserve, or zero when the balance is lower.
func inferredContribution(balance, reserve *uint256.Int) *uint256.Int {
	if balance.Gt(reserve) {
		return new(uint256.Int).Sub(balance, reserve)
	}
	return new(uint256.Int)
}

func initialShares(amountA, amountB *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(amountA, amountB)
	if overflow {
		return nil, ErrOverflow
	}
	root := new(uint256.Int).Sqrt(product)
	minimum := uint256.NewInt(MinimumLiquidity)
	if !root.Gt(minimum) {
		return nil, ErrInsufficientLiquidityMinted
	}
	return root.Sub(root, minimum), nil
}

func proportionalShares(amountA, amountB, reserveA, reserveB, totalSupply *uint256.Int) (*uint256.Int, error) {
	if reserveA.IsZero() || reserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	sharesA, err := mulDiv(amountA, totalSupply, reserveA)
	if err != nil {
		return nil, err
	}
	sharesB, err := mulDiv(amountB, totalSupply, reserveB)
	if err != nil {
		return nil, err
	}
	if sharesA.Lt(sharesB) {
		return sharesA, nil
	}
	return sharesB, nil
}

// checkInvariant requires (1000*balanceA - 3*inA) * (1000*balanceB - 3*inB)
// >= reserveA * reserveB * 1000^2. Balances must already fit in 112 bits.
func checkInvariant(balanceA, balanceB, amountAIn, amountBIn, reserveA, reserveB *uint256.Int) error {
	adjustedA := feeAdjusted(balanceA, amountAIn)
	adjustedB := feeAdjusted(balanceB, amountBIn)

	lhs := new(uint256.Int).Mul(adjustedA, adjustedB)
	rhs := new(uint256.Int).Mul(reserveA, reserveB)
	rhs.Mul(rhs, uint256.NewInt(FeeDenominator*FeeDenominator))
	if lhs.Lt(rhs) {
		return ErrK
	}
	return nil
}

func feeAdjusted(balance, amountIn *uint256.Int) *uint256.Int {
	scaled := new(uint256.Int).Mul(balance, uint256.NewInt(FeeDenominator))
	fee := new(uint256.Int).Mul(amountIn, uint256.NewInt(FeeNumerator))
	return scaled.Sub(scaled, fee)
}

func mulDiv(a, b, denominator *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, denominator), nil
}
