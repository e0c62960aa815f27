// Package sim drives pairs through a scripted scenario on an in-memory
// ledger, sizing trades with the quoting functions the way a router would.
package sim

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Step operations.
const (
	OpFund   = "fund"
	OpMint   = "mint"
	OpBurn   = "burn"
	OpSwap   = "swap"
	OpFlash  = "flash"
	OpDonate = "donate"
	OpSkim   = "skim"
	OpSync   = "sync"
	OpWait   = "wait"
	OpFeeOn  = "fee-on"
	OpFeeOff = "fee-off"
)

// Scenario is a scripted run.
type Scenario struct {
	ChainID   uint64      `mapstructure:"chain-id"`
	Factory   string      `mapstructure:"factory"`
	StartTime uint32      `mapstructure:"start-time"`
	Tokens    []TokenSpec `mapstructure:"tokens"`
	Steps     []Step      `mapstructure:"steps"`
}

// TokenSpec declares an asset. Kind is "standard" (returns a bool) or
// "silent" (returns nothing on success). Address defaults to one derived
// from the symbol.
type TokenSpec struct {
	Symbol  string `mapstructure:"symbol"`
	Address string `mapstructure:"address"`
	Kind    string `mapstructure:"kind"`
}

// Step is one scripted operation. Accounts and tokens are referenced by
// name; accounts may also be given as hex addresses.
//
//	fund    account, tokens[0], amounts[0]
//	mint    account, tokens[0:2], amounts (second amount sized by quote when empty)
//	burn    account, tokens[0:2], shares ("all" or an amount)
//	swap    account, path, amount-in | amount-out
//	flash   account, tokens[0:2], tokens[2] borrowed, amount-out, repay (default: minimum)
//	donate  account, tokens[0:2], amounts
//	skim    tokens[0:2], to
//	sync    tokens[0:2]
//	wait    seconds
//	fee-on  to
//	fee-off
//
// Expect names the failure class the step must fail with.
type Step struct {
	Op        string   `mapstructure:"op"`
	Account   string   `mapstructure:"account"`
	To        string   `mapstructure:"to"`
	Tokens    []string `mapstructure:"tokens"`
	Amounts   []string `mapstructure:"amounts"`
	Path      []string `mapstructure:"path"`
	AmountIn  string   `mapstructure:"amount-in"`
	AmountOut string   `mapstructure:"amount-out"`
	Shares    string   `mapstructure:"shares"`
	Repay     string   `mapstructure:"repay"`
	Seconds   uint32   `mapstructure:"seconds"`
	Expect    string   `mapstructure:"expect"`
}

func (s Step) String() string {
	if s.Account != "" {
		return fmt.Sprintf("%s by %s", s.Op, s.Account)
	}
	return s.Op
}

// Validate checks that every step has the fields its operation needs.
func (sc Scenario) Validate() error {
	seen := make(map[string]bool, len(sc.Tokens))
	for _, spec := range sc.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(spec.Symbol))
		if symbol == "" {
			return fmt.Errorf("token without symbol")
		}
		if seen[symbol] {
			return fmt.Errorf("duplicate token %s", symbol)
		}
		seen[symbol] = true
		switch strings.ToLower(spec.Kind) {
		case "", "standard", "silent":
		default:
			return fmt.Errorf("token %s: unknown kind %q", symbol, spec.Kind)
		}
		if spec.Address != "" && !common.IsHexAddress(spec.Address) {
			return fmt.Errorf("token %s: invalid address %s", symbol, spec.Address)
		}
	}
	if sc.Factory != "" && !common.IsHexAddress(sc.Factory) {
		return fmt.Errorf("invalid factory address %s", sc.Factory)
	}

	for i, step := range sc.Steps {
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	needAccount := func() error {
		if s.Account == "" {
			return fmt.Errorf("account is required")
		}
		return nil
	}
	needTokens := func(n int) error {
		if len(s.Tokens) < n {
			return fmt.Errorf("%d tokens are required", n)
		}
		return nil
	}

	switch s.Op {
	case OpFund:
		if err := needAccount(); err != nil {
			return err
		}
		if len(s.Tokens) == 0 || len(s.Tokens) != len(s.Amounts) {
			return fmt.Errorf("tokens and amounts must pair up")
		}
	case OpMint, OpDonate:
		if err := needAccount(); err != nil {
			return err
		}
		if err := needTokens(2); err != nil {
			return err
		}
		if len(s.Amounts) == 0 || s.Amounts[0] == "" {
			return fmt.Errorf("at least the first amount is required")
		}
	case OpBurn:
		if err := needAccount(); err != nil {
			return err
		}
		if err := needTokens(2); err != nil {
			return err
		}
		if s.Shares == "" {
			return fmt.Errorf("shares is required")
		}
	case OpSwap:
		if err := needAccount(); err != nil {
			return err
		}
		if len(s.Path) < 2 {
			return fmt.Errorf("path needs at least two tokens")
		}
		if (s.AmountIn == "") == (s.AmountOut == "") {
			return fmt.Errorf("exactly one of amount-in and amount-out is required")
		}
	case OpFlash:
		if err := needAccount(); err != nil {
			return err
		}
		if err := needTokens(3); err != nil {
			return err
		}
		if s.AmountOut == "" {
			return fmt.Errorf("amount-out is required")
		}
	case OpSkim:
		if err := needTokens(2); err != nil {
			return err
		}
		if s.To == "" {
			return fmt.Errorf("to is required")
		}
	case OpSync:
		return needTokens(2)
	case OpWait:
		if s.Seconds == 0 {
			return fmt.Errorf("seconds is required")
		}
	case OpFeeOn:
		if s.To == "" {
			return fmt.Errorf("to is required")
		}
	case OpFeeOff:
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

// NameAddress maps a name to an address: hex strings parse directly,
// anything else hashes to a stable address.
func NameAddress(name string) common.Address {
	name = strings.TrimSpace(name)
	if common.IsHexAddress(name) {
		return common.HexToAddress(name)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(strings.ToLower(name)))[12:])
}

// TokenAddress is the address a run gives the declared token.
func TokenAddress(spec TokenSpec) common.Address {
	if spec.Address != "" {
		return common.HexToAddress(spec.Address)
	}
	return NameAddress("token:" + strings.ToUpper(strings.TrimSpace(spec.Symbol)))
}
