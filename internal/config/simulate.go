package config

import (
	"fmt"

	"github.com/spf13/pflag"

	"pairEngine/internal/sim"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario   sim.Scenario
	Out        string
	States     string
	Resume     bool
	PGDSN      string
	MetricsOut string
	LogLevel   string
}

// LoadSimulate merges config file, environment variables, and flags into
// SimulateConfig. The scenario itself is read from the chain-id, factory,
// start-time, tokens and steps keys of the config file.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":       "./data/pair_logs.jsonl",
		"states":    "./data/pair_states.json",
		"resume":    false,
		"log-level": "info",
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	var sc sim.Scenario
	if err := v.Unmarshal(&sc); err != nil {
		return SimulateConfig{}, fmt.Errorf("decode scenario: %w", err)
	}

	cfg := SimulateConfig{
		Scenario:   sc,
		Out:        v.GetString("out"),
		States:     v.GetString("states"),
		Resume:     v.GetBool("resume"),
		PGDSN:      v.GetString("pg-dsn"),
		MetricsOut: v.GetString("metrics-out"),
		LogLevel:   v.GetString("log-level"),
	}
	if cfg.Resume && cfg.States == "" && cfg.PGDSN == "" {
		return SimulateConfig{}, fmt.Errorf("resume needs a states file or pg-dsn")
	}
	return cfg, nil
}
