package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "pairctl",
		Short:        "Constant-product pair engine and quoting tool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted scenario against in-memory pairs",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("out", "./data/pair_logs.jsonl", "output JSONL path for pair logs")
	simulateCmd.Flags().String("states", "./data/pair_states.json", "pair state file written at the end of the run")
	simulateCmd.Flags().Bool("resume", false, "start from previously saved pair states")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for logs and pair states")
	simulateCmd.Flags().String("metrics-out", "", "optional path for a Prometheus text dump of run metrics")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap along a token path",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("amount", "", "exact input amount, or exact output with --exact-out")
	quoteCmd.Flags().StringSlice("path", nil, "token addresses from input to output (comma-separated)")
	quoteCmd.Flags().Bool("exact-out", false, "treat amount as the desired output")
	quoteCmd.Flags().StringSlice("reserves", nil, "per-hop reserves as reserveIn:reserveOut (comma-separated)")
	quoteCmd.Flags().String("rpc", "", "RPC URL for live reserves")
	quoteCmd.Flags().String("factory", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", "factory address used with --rpc")
	quoteCmd.Flags().Uint64("block", 0, "block to read reserves at, 0 means latest")
	quoteCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	quoteCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode simulated pair logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("in", "./data/pair_logs.jsonl", "input pair logs JSONL")
	decodeCmd.Flags().String("out", "./data/pair_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	twapCmd := &cobra.Command{
		Use:   "twap",
		Short: "Time-weighted average price of a deployed pair between two blocks",
		RunE:  runTWAP,
	}

	twapCmd.Flags().String("rpc", "", "RPC URL")
	twapCmd.Flags().String("pair", "", "pair address")
	twapCmd.Flags().Uint64("from", 0, "start block")
	twapCmd.Flags().Uint64("to", 0, "end block, 0 means latest")
	twapCmd.Flags().String("amount", "", "optional amount to value at the average price")
	twapCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	twapCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	twapCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(twapCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
