package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairEngine/internal/config"
	"pairEngine/internal/metrics"
	"pairEngine/internal/model"
	"pairEngine/internal/registry"
	"pairEngine/internal/sim"
	"pairEngine/internal/storage"
	"pairEngine/internal/storage/postgres"
	"pairEngine/internal/uq"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if len(cfg.Scenario.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logSinks := storage.Multi{storage.NewJsonlStorage(cfg.Out)}
	var stateSinks storage.MultiState
	var stateFile *storage.StateFile
	if cfg.States != "" {
		stateFile = storage.NewStateFile(cfg.States)
		stateSinks = append(stateSinks, stateFile)
	}

	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN, cfg.Scenario.ChainID)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		logSinks = append(logSinks, store)
		stateSinks = append(stateSinks, store)
	}

	var initial []model.PairState
	if cfg.Resume {
		initial, err = loadStates(ctx, cfg.Scenario, stateFile, store)
		if err != nil {
			return err
		}
		logger.Info("resuming", zap.Int("pairs", len(initial)))
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	runner, err := sim.NewRunner(cfg.Scenario, sim.Options{
		Logs:       logSinks,
		States:     stateSinks,
		Sink:       m,
		Rejections: m,
		Initial:    initial,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.Uint64("chain_id", cfg.Scenario.ChainID),
		zap.Int("tokens", len(cfg.Scenario.Tokens)),
		zap.Int("steps", len(cfg.Scenario.Steps)),
		zap.String("out", cfg.Out),
		zap.String("states", cfg.States),
		zap.Bool("postgres", store != nil),
	)

	res, runErr := runner.Run(ctx)
	if cfg.MetricsOut != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsOut, reg); err != nil {
			logger.Error("write metrics", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	for _, state := range res.States {
		fmt.Fprintf(cmd.OutOrStdout(), "%s reserves=%s/%s supply=%s price=%s\n",
			state.Address.Hex(), state.ReserveA, state.ReserveB, state.TotalSupply, spotPrice(state))
	}
	return nil
}

// spotPrice is reserveB/reserveA, or "-" for an empty pair.
func spotPrice(state model.PairState) string {
	reserveA, errA := uint256.FromDecimal(state.ReserveA)
	reserveB, errB := uint256.FromDecimal(state.ReserveB)
	if errA != nil || errB != nil || reserveA.IsZero() {
		return "-"
	}
	price, err := uq.Ratio(reserveB, reserveA)
	if err != nil {
		return "-"
	}
	return uq.FloatString(price, 6)
}

// loadStates prefers the state file and falls back to Postgres, where
// states are looked up by the derived address of every declared token pair.
func loadStates(ctx context.Context, sc sim.Scenario, file *storage.StateFile, store *postgres.Store) ([]model.PairState, error) {
	if file != nil {
		states, ok, err := file.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			return states, nil
		}
	}
	if store == nil {
		return nil, nil
	}

	factory := sim.DefaultFactory
	if sc.Factory != "" {
		factory = common.HexToAddress(sc.Factory)
	}
	addrs := registry.New(registry.Options{Address: factory})

	tokens := make([]common.Address, 0, len(sc.Tokens))
	for _, spec := range sc.Tokens {
		tokens = append(tokens, sim.TokenAddress(spec))
	}

	var states []model.PairState
	for i := range tokens {
		for j := i + 1; j < len(tokens); j++ {
			pairAddr, err := addrs.PairAddress(tokens[i], tokens[j])
			if err != nil {
				return nil, err
			}
			state, ok, err := store.LoadPairState(ctx, pairAddr)
			if err != nil {
				return nil, err
			}
			if ok {
				states = append(states, state)
			}
		}
	}
	return states, nil
}
