package model

// LogRecord is an ABI-encoded pair event in the shape of a chain log.
// Step numbers the operation that produced it when the log comes from a
// simulation rather than a block.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Timestamp   uint64   `json:"timestamp"`
	Step        int      `json:"step,omitempty"`
}
