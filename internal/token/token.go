// Package token models the asset transfer collaborator a pair moves funds
// through, and normalizes the two return conventions found in the wild.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrTransferFailed is returned when a token rejects or reports failure of a transfer.
	ErrTransferFailed = errors.New("token: transfer failed")
	// ErrInsufficientBalance is returned by the ledger when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance is returned by the ledger when a spender exceeds its allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Token is a fungible asset. Transfer and TransferFrom hand back the raw
// return data of the call: conforming tokens return an ABI-encoded bool,
// older tokens return nothing on success. Use SafeTransfer and
// SafeTransferFrom instead of interpreting the bytes directly.
type Token interface {
	Address() common.Address
	BalanceOf(account common.Address) (*uint256.Int, error)
	Transfer(from, to common.Address, amount *uint256.Int) ([]byte, error)
	TransferFrom(spender, from, to common.Address, amount *uint256.Int) ([]byte, error)
}

var (
	boolArgs     abi.Arguments
	boolArgsOnce sync.Once
	boolArgsErr  error
)

func boolArguments() (abi.Arguments, error) {
	boolArgsOnce.Do(func() {
		boolType, err := abi.NewType("bool", "", nil)
		if err != nil {
			boolArgsErr = err
			return
		}
		boolArgs = abi.Arguments{{Type: boolType}}
	})
	return boolArgs, boolArgsErr
}

// EncodeResult packs a transfer result the way a conforming token returns it.
func EncodeResult(ok bool) ([]byte, error) {
	args, err := boolArguments()
	if err != nil {
		return nil, err
	}
	return args.Pack(ok)
}

// CheckResult interprets transfer return data. Empty data is success;
// otherwise it must decode to true.
func CheckResult(ret []byte) error {
	if len(ret) == 0 {
		return nil
	}
	args, err := boolArguments()
	if err != nil {
		return err
	}
	values, err := args.Unpack(ret)
	if err != nil {
		return fmt.Errorf("%w: decode return: %v", ErrTransferFailed, err)
	}
	ok, isBool := values[0].(bool)
	if !isBool || !ok {
		return ErrTransferFailed
	}
	return nil
}

// SafeTransfer moves amount from -> to and fails on an error or a false result.
func SafeTransfer(t Token, from, to common.Address, amount *uint256.Int) error {
	ret, err := t.Transfer(from, to, amount)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, t.Address().Hex(), err)
	}
	if err := CheckResult(ret); err != nil {
		return fmt.Errorf("%s: %w", t.Address().Hex(), err)
	}
	return nil
}

// SafeTransferFrom is SafeTransfer for allowance-based moves.
func SafeTransferFrom(t Token, spender, from, to common.Address, amount *uint256.Int) error {
	ret, err := t.TransferFrom(spender, from, to, amount)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransferFailed, t.Address().Hex(), err)
	}
	if err := CheckResult(ret); err != nil {
		return fmt.Errorf("%s: %w", t.Address().Hex(), err)
	}
	return nil
}
