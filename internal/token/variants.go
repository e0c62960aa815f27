package token

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Standard is a ledger-backed token that reports every transfer outcome as
// an ABI-encoded bool. A failed debit returns false rather than an error.
type Standard struct {
	ledger  *Ledger
	address common.Address
}

func NewStandard(ledger *Ledger, address common.Address) *Standard {
	return &Standard{ledger: ledger, address: address}
}

func (t *Standard) Address() common.Address { return t.address }

func (t *Standard) BalanceOf(account common.Address) (*uint256.Int, error) {
	return t.ledger.Balance(t.address, account), nil
}

func (t *Standard) Transfer(from, to common.Address, amount *uint256.Int) ([]byte, error) {
	return EncodeResult(t.ledger.move(t.address, from, to, amount) == nil)
}

func (t *Standard) TransferFrom(spender, from, to common.Address, amount *uint256.Int) ([]byte, error) {
	return EncodeResult(t.ledger.spend(t.address, spender, from, to, amount) == nil)
}

// Silent is a ledger-backed token that returns no data on success and an
// error on failure, like tokens predating the bool return convention.
type Silent struct {
	ledger  *Ledger
	address common.Address
}

func NewSilent(ledger *Ledger, address common.Address) *Silent {
	return &Silent{ledger: ledger, address: address}
}

func (t *Silent) Address() common.Address { return t.address }

func (t *Silent) BalanceOf(account common.Address) (*uint256.Int, error) {
	return t.ledger.Balance(t.address, account), nil
}

func (t *Silent) Transfer(from, to common.Address, amount *uint256.Int) ([]byte, error) {
	if err := t.ledger.move(t.address, from, to, amount); err != nil {
		return nil, err
	}
	return nil, nil
}

func (t *Silent) TransferFrom(spender, from, to common.Address, amount *uint256.Int) ([]byte, error) {
	if err := t.ledger.spend(t.address, spender, from, to, amount); err != nil {
		return nil, err
	}
	return nil, nil
}
