package model

import "github.com/ethereum/go-ethereum/common"

// PairState is the persisted record of one pair, keyed by its address and
// the canonically ordered asset pair. Amounts are decimal strings.
type PairState struct {
	Address            common.Address            `json:"address"`
	TokenA             common.Address            `json:"token_a"`
	TokenB             common.Address            `json:"token_b"`
	ReserveA           string                    `json:"reserve_a"`
	ReserveB           string                    `json:"reserve_b"`
	BlockTimestampLast uint32                    `json:"block_timestamp_last"`
	PriceACumulative   string                    `json:"price_a_cumulative"`
	PriceBCumulative   string                    `json:"price_b_cumulative"`
	KLast              string                    `json:"k_last"`
	TotalSupply        string                    `json:"total_supply"`
	Shares             map[common.Address]string `json:"shares,omitempty"`
}
