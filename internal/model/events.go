package model

import "github.com/ethereum/go-ethereum/common"

const (
	EventMint = "Mint"
	EventBurn = "Burn"
	EventSwap = "Swap"
	EventSync = "Sync"
)

// Event is a record emitted by a pair after a successful state change.
type Event interface {
	EventName() string
	PairAddress() common.Address
}

// MintEvent records liquidity added to a pair.
type MintEvent struct {
	Pair    common.Address `json:"pair"`
	Sender  common.Address `json:"sender"`
	AmountA string         `json:"amount_a"`
	AmountB string         `json:"amount_b"`
}

// BurnEvent records liquidity removed from a pair.
type BurnEvent struct {
	Pair    common.Address `json:"pair"`
	Sender  common.Address `json:"sender"`
	AmountA string         `json:"amount_a"`
	AmountB string         `json:"amount_b"`
	To      common.Address `json:"to"`
}

// SwapEvent records a trade against a pair.
type SwapEvent struct {
	Pair       common.Address `json:"pair"`
	Sender     common.Address `json:"sender"`
	AmountAIn  string         `json:"amount_a_in"`
	AmountBIn  string         `json:"amount_b_in"`
	AmountAOut string         `json:"amount_a_out"`
	AmountBOut string         `json:"amount_b_out"`
	To         common.Address `json:"to"`
}

// SyncEvent is the reserve snapshot written after every reserve update.
type SyncEvent struct {
	Pair     common.Address `json:"pair"`
	ReserveA string         `json:"reserve_a"`
	ReserveB string         `json:"reserve_b"`
}

func (e MintEvent) EventName() string { return EventMint }
func (e BurnEvent) EventName() string { return EventBurn }
func (e SwapEvent) EventName() string { return EventSwap }
func (e SyncEvent) EventName() string { return EventSync }

func (e MintEvent) PairAddress() common.Address { return e.Pair }
func (e BurnEvent) PairAddress() common.Address { return e.Pair }
func (e SwapEvent) PairAddress() common.Address { return e.Pair }
func (e SyncEvent) PairAddress() common.Address { return e.Pair }
