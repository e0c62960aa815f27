package model

// TypedEvent is a decoded pair log with its position. Step is set for
// logs produced by a simulation.
type TypedEvent struct {
	ChainID     uint64     `json:"chain_id"`
	BlockNumber uint64     `json:"block_number"`
	LogIndex    uint64     `json:"log_index"`
	Step        int        `json:"step,omitempty"`
	Address     string     `json:"address"`
	EventName   string     `json:"event_name"`
	Timestamp   uint64     `json:"timestamp"`
	Decoded     Event      `json:"decoded"`
	Raw         *RawLogRef `json:"raw,omitempty"`
}

// RawLogRef keeps the encoded form next to the decoded one.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
