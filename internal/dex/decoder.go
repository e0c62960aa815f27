package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"pairEngine/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// PairDecoder decodes constant-product pair events back into model events.
type PairDecoder struct {
	pairABI     abi.ABI
	topicToName map[string]string
}

func NewPairDecoder() (*PairDecoder, error) {
	pairABI, err := PairABI()
	if err != nil {
		return nil, err
	}
	topicToName := make(map[string]string, 4)
	for _, name := range []string{model.EventMint, model.EventBurn, model.EventSwap, model.EventSync} {
		topicToName[strings.ToLower(pairABI.Events[name].ID.Hex())] = name
	}
	return &PairDecoder{pairABI: pairABI, topicToName: topicToName}, nil
}

// CanDecode checks if the topic0 is supported.
func (d *PairDecoder) CanDecode(topic0 string) bool {
	if topic0 == "" {
		return false
	}
	_, ok := d.topicToName[strings.ToLower(topic0)]
	return ok
}

// Decode converts a LogRecord into a TypedEvent.
func (d *PairDecoder) Decode(log model.LogRecord) (*model.TypedEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	name, ok := d.topicToName[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, fmt.Errorf("unsupported topic0: %s", log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return nil, fmt.Errorf("invalid pair address: %s", log.Address)
	}
	pair := common.HexToAddress(log.Address)

	event := d.pairABI.Events[name]
	indexed, err := d.parseIndexed(event, log.Topics)
	if err != nil {
		return nil, err
	}
	amounts, err := unpackAmounts(event, log.Data)
	if err != nil {
		return nil, err
	}

	var decoded model.Event
	switch name {
	case model.EventMint:
		decoded = model.MintEvent{Pair: pair, Sender: indexed.Sender, AmountA: amounts[0], AmountB: amounts[1]}
	case model.EventBurn:
		decoded = model.BurnEvent{Pair: pair, Sender: indexed.Sender, AmountA: amounts[0], AmountB: amounts[1], To: indexed.To}
	case model.EventSwap:
		decoded = model.SwapEvent{
			Pair:       pair,
			Sender:     indexed.Sender,
			AmountAIn:  amounts[0],
			AmountBIn:  amounts[1],
			AmountAOut: amounts[2],
			AmountBOut: amounts[3],
			To:         indexed.To,
		}
	case model.EventSync:
		decoded = model.SyncEvent{Pair: pair, ReserveA: amounts[0], ReserveB: amounts[1]}
	default:
		return nil, fmt.Errorf("unsupported event name: %s", name)
	}

	return &model.TypedEvent{
		ChainID:     log.ChainID,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.LogIndex,
		Step:        log.Step,
		Address:     log.Address,
		EventName:   name,
		Timestamp:   log.Timestamp,
		Decoded:     decoded,
		Raw:         &model.RawLogRef{Topic0: log.Topics[0], Data: log.Data},
	}, nil
}

type indexedAddresses struct {
	Sender common.Address
	To     common.Address
}

func (d *PairDecoder) parseIndexed(event abi.Event, topics []string) (indexedAddresses, error) {
	var out indexedAddresses
	indexedTopics, err := parseIndexedTopics(event, topics)
	if err != nil {
		return out, err
	}
	if len(indexedTopics) == 0 {
		return out, nil
	}
	if err := abi.ParseTopics(&out, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return out, fmt.Errorf("parse topics: %w", err)
	}
	return out, nil
}

func unpackAmounts(event abi.Event, dataHex string) ([]string, error) {
	values, err := unpackNonIndexed(event, dataHex)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(values))
	for i, value := range values {
		v, ok := value.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: unsupported int type %T", event.Name, value)
		}
		out[i] = v.String()
	}
	return out, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
