package dex

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"pairEngine/internal/model"
)

// EncodeLog packs a pair event into the address, topics and data of a
// chain log. Position fields are left for the caller.
func EncodeLog(event model.Event) (model.LogRecord, error) {
	pairABI, err := PairABI()
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("parse pair abi: %w", err)
	}

	var (
		name    string
		indexed []common.Address
		amounts []string
	)
	switch e := event.(type) {
	case model.MintEvent:
		name, indexed, amounts = model.EventMint, []common.Address{e.Sender}, []string{e.AmountA, e.AmountB}
	case model.BurnEvent:
		name, indexed, amounts = model.EventBurn, []common.Address{e.Sender, e.To}, []string{e.AmountA, e.AmountB}
	case model.SwapEvent:
		name, indexed = model.EventSwap, []common.Address{e.Sender, e.To}
		amounts = []string{e.AmountAIn, e.AmountBIn, e.AmountAOut, e.AmountBOut}
	case model.SyncEvent:
		name, amounts = model.EventSync, []string{e.ReserveA, e.ReserveB}
	default:
		return model.LogRecord{}, fmt.Errorf("unsupported event type %T", event)
	}

	abiEvent, ok := pairABI.Events[name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("event %s missing from pair abi", name)
	}
	data, err := packAmounts(abiEvent.Inputs.NonIndexed(), amounts)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", name, err)
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, abiEvent.ID.Hex())
	for _, addr := range indexed {
		topics = append(topics, topicFromAddress(addr).Hex())
	}
	return model.LogRecord{
		Address: event.PairAddress().Hex(),
		Topics:  topics,
		Data:    hexutil.Encode(data),
	}, nil
}

func packAmounts(args abi.Arguments, amounts []string) ([]byte, error) {
	if len(args) != len(amounts) {
		return nil, fmt.Errorf("expected %d amounts, got %d", len(args), len(amounts))
	}
	values := make([]interface{}, len(amounts))
	for i, amount := range amounts {
		v, err := parseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", args[i].Name, err)
		}
		if v.BitLen() > args[i].Type.Size {
			return nil, fmt.Errorf("%s: %s does not fit in %s", args[i].Name, amount, args[i].Type.String())
		}
		values[i] = v
	}
	return args.Pack(values...)
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v.ToBig(), nil
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}
