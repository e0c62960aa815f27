package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
)

// TWAPConfig holds configuration for the twap command.
type TWAPConfig struct {
	RPCURL       string
	Pair         string
	FromBlock    uint64
	ToBlock      uint64
	Amount       string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadTWAP merges config file, environment variables, and flags into TWAPConfig.
func LoadTWAP(cfgFile string, flags *pflag.FlagSet) (TWAPConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return TWAPConfig{}, err
	}

	cfg := TWAPConfig{
		RPCURL:       v.GetString("rpc"),
		Pair:         v.GetString("pair"),
		FromBlock:    v.GetUint64("from"),
		ToBlock:      v.GetUint64("to"),
		Amount:       v.GetString("amount"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	switch {
	case cfg.RPCURL == "":
		return TWAPConfig{}, fmt.Errorf("rpc url is required")
	case !common.IsHexAddress(cfg.Pair):
		return TWAPConfig{}, fmt.Errorf("invalid pair address: %q", cfg.Pair)
	case cfg.FromBlock == 0:
		return TWAPConfig{}, fmt.Errorf("from block is required")
	case cfg.ToBlock != 0 && cfg.ToBlock <= cfg.FromBlock:
		return TWAPConfig{}, fmt.Errorf("to block must be after from block")
	}
	return cfg, nil
}
