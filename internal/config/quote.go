package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command. Reserves are
// given per hop as "reserveIn:reserveOut"; without them reserves are read
// from the factory over RPC.
type QuoteConfig struct {
	Amount       string
	Path         []string
	ExactOut     bool
	Reserves     []string
	RPCURL       string
	Factory      string
	Block        uint64
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"log-level":     "info",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		Amount:       v.GetString("amount"),
		Path:         getStringSlice(v, "path"),
		ExactOut:     v.GetBool("exact-out"),
		Reserves:     getStringSlice(v, "reserves"),
		RPCURL:       v.GetString("rpc"),
		Factory:      v.GetString("factory"),
		Block:        v.GetUint64("block"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	switch {
	case cfg.Amount == "":
		return QuoteConfig{}, fmt.Errorf("amount is required")
	case len(cfg.Path) < 2:
		return QuoteConfig{}, fmt.Errorf("path needs at least two tokens")
	case len(cfg.Reserves) == 0 && cfg.RPCURL == "":
		return QuoteConfig{}, fmt.Errorf("either reserves or rpc is required")
	case len(cfg.Reserves) > 0 && len(cfg.Reserves) != len(cfg.Path)-1:
		return QuoteConfig{}, fmt.Errorf("%d reserves given for %d hops", len(cfg.Reserves), len(cfg.Path)-1)
	}
	return cfg, nil
}
