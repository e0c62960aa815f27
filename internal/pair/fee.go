package pair

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type protocolFee struct {
	on   bool
	to   common.Address
	owed *uint256.Int
}

// accrueProtocolFee computes the shares owed to the fee recipient for the
// growth of sqrt(k) since the last mint or burn: one sixth of the growth,
// expressed as newly minted shares. Nothing is written.
func (p *Pair) accrueProtocolFee(reserveA, reserveB *uint256.Int) (protocolFee, error) {
	fee := protocolFee{owed: new(uint256.Int)}
	if p.feeSwitch != nil {
		fee.to = p.feeSwitch.FeeTo()
	}
	fee.on = fee.to != (common.Address{})
	if !fee.on || p.kLast.IsZero() {
		return fee, nil
	}

	k, overflow := new(uint256.Int).MulOverflow(reserveA, reserveB)
	if overflow {
		return fee, ErrOverflow
	}
	rootK := new(uint256.Int).Sqrt(k)
	rootKLast := new(uint256.Int).Sqrt(&p.kLast)
	if !rootK.Gt(rootKLast) {
		return fee, nil
	}

	growth := new(uint256.Int).Sub(rootK, rootKLast)
	numerator, overflow := new(uint256.Int).MulOverflow(&p.shares.total, growth)
	if overflow {
		return fee, ErrOverflow
	}
	denominator := new(uint256.Int).Mul(rootK, uint256.NewInt(5))
	denominator.Add(denominator, rootKLast)
	fee.owed.Div(numerator, denominator)
	return fee, nil
}

// settleProtocolFee mints owed fee shares and records kLast for the new
// reserves. Callers hold p.mu.
func (p *Pair) settleProtocolFee(fee protocolFee) {
	if !fee.owed.IsZero() {
		p.shares.mint(fee.to, fee.owed)
	}
	if fee.on {
		p.kLast.Mul(&p.reserveA, &p.reserveB)
	} else if !p.kLast.IsZero() {
		p.kLast.Clear()
	}
}
