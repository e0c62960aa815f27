package pair

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BurnAddress holds the permanently locked minimum liquidity.
var BurnAddress = common.Address{}

// shareLedger tracks liquidity shares. Callers hold Pair.mu.
type shareLedger struct {
	total    uint256.Int
	balances map[common.Address]uint256.Int
}

func newShareLedger() *shareLedger {
	return &shareLedger{balances: make(map[common.Address]uint256.Int)}
}

func (s *shareLedger) balanceOf(account common.Address) *uint256.Int {
	bal := s.balances[account]
	return bal.Clone()
}

func (s *shareLedger) mint(to common.Address, amount *uint256.Int) {
	s.total.Add(&s.total, amount)
	bal := s.balances[to]
	s.balances[to] = *bal.Add(&bal, amount)
}

func (s *shareLedger) burn(from common.Address, amount *uint256.Int) {
	s.total.Sub(&s.total, amount)
	bal := s.balances[from]
	bal.Sub(&bal, amount)
	if bal.IsZero() {
		delete(s.balances, from)
		return
	}
	s.balances[from] = bal
}

func (s *shareLedger) transfer(from, to common.Address, amount *uint256.Int) error {
	if from == BurnAddress {
		return ErrLockedShares
	}
	fromBal := s.balances[from]
	if fromBal.Lt(amount) {
		return ErrInsufficientShares
	}
	fromBal.Sub(&fromBal, amount)
	if fromBal.IsZero() {
		delete(s.balances, from)
	} else {
		s.balances[from] = fromBal
	}
	toBal := s.balances[to]
	s.balances[to] = *toBal.Add(&toBal, amount)
	return nil
}

// TransferShares moves liquidity shares between holders. Burning requires
// the holder to first move shares to the pair's own address.
func (p *Pair) TransferShares(from, to common.Address, amount *uint256.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares.transfer(from, to, amount)
}
