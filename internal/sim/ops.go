package sim

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"pairEngine/internal/pair"
	"pairEngine/internal/quote"
	"pairEngine/internal/token"
)

func (r *Runner) token(symbol string) (token.Token, error) {
	t, ok := r.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", symbol)
	}
	return t, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// pairFor resolves the pair of the first two step tokens, creating it
// when create is set.
func (r *Runner) pairFor(step Step, create bool) (*pair.Pair, token.Token, token.Token, error) {
	tokenX, err := r.token(step.Tokens[0])
	if err != nil {
		return nil, nil, nil, err
	}
	tokenY, err := r.token(step.Tokens[1])
	if err != nil {
		return nil, nil, nil, err
	}
	p, ok := r.registry.GetPair(tokenX.Address(), tokenY.Address())
	if ok {
		return p, tokenX, tokenY, nil
	}
	if !create {
		return nil, nil, nil, fmt.Errorf("no pair for %s/%s", step.Tokens[0], step.Tokens[1])
	}
	p, err = r.registry.CreatePair(tokenX, tokenY)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, tokenX, tokenY, nil
}

func (r *Runner) withPair(step Step, fn func(p *pair.Pair) error) error {
	p, _, _, err := r.pairFor(step, false)
	if err != nil {
		return err
	}
	return fn(p)
}

// oriented returns the reserves of p ordered as (x, y) for tokenX.
func oriented(p *pair.Pair, tokenX token.Token) (*uint256.Int, *uint256.Int) {
	reserveA, reserveB, _ := p.Reserves()
	if p.TokenA().Address() == tokenX.Address() {
		return reserveA, reserveB
	}
	return reserveB, reserveA
}

func (r *Runner) fund(step Step) error {
	account := NameAddress(step.Account)
	for i, symbol := range step.Tokens {
		t, err := r.token(symbol)
		if err != nil {
			return err
		}
		amount, err := parseAmount(step.Amounts[i])
		if err != nil {
			return err
		}
		r.ledger.Mint(t.Address(), account, amount)
	}
	return nil
}

// deposit moves amounts of tokenX and tokenY from the account into p.
// An empty second amount is sized to the current reserve ratio.
func (r *Runner) deposit(step Step, p *pair.Pair, tokenX, tokenY token.Token) error {
	account := NameAddress(step.Account)
	amountX, err := parseAmount(step.Amounts[0])
	if err != nil {
		return err
	}
	var amountY *uint256.Int
	if len(step.Amounts) > 1 && step.Amounts[1] != "" {
		if amountY, err = parseAmount(step.Amounts[1]); err != nil {
			return err
		}
	} else {
		reserveX, reserveY := oriented(p, tokenX)
		if amountY, err = quote.Quote(amountX, reserveX, reserveY); err != nil {
			return fmt.Errorf("size second amount: %w", err)
		}
	}

	if err := token.SafeTransfer(tokenX, account, p.Address(), amountX); err != nil {
		return err
	}
	return token.SafeTransfer(tokenY, account, p.Address(), amountY)
}

func (r *Runner) mint(step Step) error {
	p, tokenX, tokenY, err := r.pairFor(step, true)
	if err != nil {
		return err
	}
	snapshot := r.ledger.Snapshot()
	if err := r.deposit(step, p, tokenX, tokenY); err != nil {
		r.ledger.RevertToSnapshot(snapshot)
		return err
	}
	account := NameAddress(step.Account)
	liquidity, err := p.Mint(account, account)
	if err != nil {
		r.ledger.RevertToSnapshot(snapshot)
		return err
	}
	r.logger.Info("minted",
		zap.String("account", step.Account),
		zap.String("pair", p.Address().Hex()),
		zap.String("liquidity", liquidity.Dec()),
	)
	return nil
}

func (r *Runner) donate(step Step) error {
	p, tokenX, tokenY, err := r.pairFor(step, false)
	if err != nil {
		return err
	}
	snapshot := r.ledger.Snapshot()
	if err := r.deposit(step, p, tokenX, tokenY); err != nil {
		r.ledger.RevertToSnapshot(snapshot)
		return err
	}
	return nil
}

func (r *Runner) burn(step Step) error {
	p, _, _, err := r.pairFor(step, false)
	if err != nil {
		return err
	}
	account := NameAddress(step.Account)
	shares := p.SharesOf(account)
	if !strings.EqualFold(step.Shares, "all") {
		if shares, err = parseAmount(step.Shares); err != nil {
			return err
		}
	}
	if err := p.TransferShares(account, p.Address(), shares); err != nil {
		return err
	}
	amountA, amountB, err := p.Burn(account, account)
	if err != nil {
		// hand the staged shares back
		if undo := p.TransferShares(p.Address(), account, shares); undo != nil {
			r.logger.Error("return staged shares", zap.Error(undo))
		}
		return err
	}
	r.logger.Info("burned",
		zap.String("account", step.Account),
		zap.String("pair", p.Address().Hex()),
		zap.String("amount_a", amountA.Dec()),
		zap.String("amount_b", amountB.Dec()),
	)
	return nil
}

// swap routes along step.Path: the input goes to the first pair and each
// hop sends its output straight to the next pair.
func (r *Runner) swap(ctx context.Context, step Step) error {
	path := make([]common.Address, len(step.Path))
	for i, symbol := range step.Path {
		t, err := r.token(symbol)
		if err != nil {
			return err
		}
		path[i] = t.Address()
	}

	var (
		amounts []*uint256.Int
		err     error
	)
	if step.AmountIn != "" {
		amountIn, perr := parseAmount(step.AmountIn)
		if perr != nil {
			return perr
		}
		amounts, err = quote.GetAmountsOut(ctx, r.registry, amountIn, path)
	} else {
		amountOut, perr := parseAmount(step.AmountOut)
		if perr != nil {
			return perr
		}
		amounts, err = quote.GetAmountsIn(ctx, r.registry, amountOut, path)
	}
	if err != nil {
		return err
	}

	account := NameAddress(step.Account)
	first, _ := r.registry.GetPair(path[0], path[1])
	snapshot := r.ledger.Snapshot()
	if err := token.SafeTransfer(r.byAddr[path[0]], account, first.Address(), amounts[0]); err != nil {
		r.ledger.RevertToSnapshot(snapshot)
		return err
	}

	for i := 0; i < len(path)-1; i++ {
		p, _ := r.registry.GetPair(path[i], path[i+1])
		to := account
		if i < len(path)-2 {
			next, _ := r.registry.GetPair(path[i+1], path[i+2])
			to = next.Address()
		}
		outA, outB := new(uint256.Int), amounts[i+1]
		if p.TokenA().Address() == path[i+1] {
			outA, outB = amounts[i+1], new(uint256.Int)
		}
		if err := p.Swap(account, outA, outB, to, nil); err != nil {
			if i == 0 {
				// nothing committed yet; return the input
				r.ledger.RevertToSnapshot(snapshot)
			}
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}

	r.logger.Info("swapped",
		zap.String("account", step.Account),
		zap.Strings("path", step.Path),
		zap.String("amount_in", amounts[0].Dec()),
		zap.String("amount_out", amounts[len(amounts)-1].Dec()),
	)
	return nil
}

// flash borrows amount-out of tokens[2] from the pair of tokens[0:2] and
// repays from the account's balance inside the swap callback.
func (r *Runner) flash(step Step) error {
	p, _, _, err := r.pairFor(step, false)
	if err != nil {
		return err
	}
	borrowed, err := r.token(step.Tokens[2])
	if err != nil {
		return err
	}
	if borrowed.Address() != p.TokenA().Address() && borrowed.Address() != p.TokenB().Address() {
		return fmt.Errorf("token %s is not in the pair", step.Tokens[2])
	}
	amount, err := parseAmount(step.AmountOut)
	if err != nil {
		return err
	}

	repay := MinimumRepayment(amount)
	if step.Repay != "" {
		if repay, err = parseAmount(step.Repay); err != nil {
			return err
		}
	}

	account := NameAddress(step.Account)
	r.callees.Register(account, pair.SwapCalleeFunc(func(_ common.Address, _, _ *uint256.Int, _ []byte) error {
		return token.SafeTransfer(borrowed, account, p.Address(), repay)
	}))
	defer r.callees.Unregister(account)

	outA, outB := amount, new(uint256.Int)
	if borrowed.Address() == p.TokenB().Address() {
		outA, outB = new(uint256.Int), amount
	}
	if err := p.Swap(account, outA, outB, account, []byte(step.Op)); err != nil {
		return err
	}
	r.logger.Info("flash swap repaid",
		zap.String("account", step.Account),
		zap.String("borrowed", amount.Dec()),
		zap.String("repaid", repay.Dec()),
	)
	return nil
}

// MinimumRepayment is the smallest same-asset repayment that clears the
// fee-adjusted invariant for a flash borrow: ceil(amount*1000/997).
func MinimumRepayment(amount *uint256.Int) *uint256.Int {
	num := new(uint256.Int).Mul(amount, uint256.NewInt(pair.FeeDenominator))
	den := uint256.NewInt(pair.FeeDenominator - pair.FeeNumerator)
	out, rem := new(uint256.Int).DivMod(num, den, new(uint256.Int))
	if !rem.IsZero() {
		out.AddUint64(out, 1)
	}
	return out
}
