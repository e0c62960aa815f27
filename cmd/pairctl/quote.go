package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairEngine/internal/chain"
	"pairEngine/internal/config"
	"pairEngine/internal/dex"
	"pairEngine/internal/quote"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	amount, err := uint256.FromDecimal(cfg.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	path, err := parsePath(cfg.Path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		src    quote.ReserveSource
		reader *dex.PairReader
	)
	if len(cfg.Reserves) > 0 {
		src, err = staticReserves(path, cfg.Reserves)
		if err != nil {
			return err
		}
	} else {
		if !common.IsHexAddress(cfg.Factory) {
			return fmt.Errorf("invalid factory address: %s", cfg.Factory)
		}
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()

		reader = dex.NewPairReader(chainClient, dex.ReaderConfig{
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		})
		var block *big.Int
		if cfg.Block > 0 {
			block = new(big.Int).SetUint64(cfg.Block)
		}
		src = dex.FactoryReserves{Reader: reader, Factory: common.HexToAddress(cfg.Factory), Block: block}
	}

	var amounts []*uint256.Int
	if cfg.ExactOut {
		amounts, err = quote.GetAmountsIn(ctx, src, amount, path)
	} else {
		amounts, err = quote.GetAmountsOut(ctx, src, amount, path)
	}
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	logger.Debug("quoted",
		zap.Int("hops", len(path)-1),
		zap.Bool("exact_out", cfg.ExactOut),
		zap.String("amount", amount.Dec()),
	)

	out := cmd.OutOrStdout()
	for i, token := range path {
		label := token.Hex()
		if reader != nil {
			if meta, err := reader.TokenMeta(ctx, token); err == nil && meta.Symbol != "" {
				label = fmt.Sprintf("%s (%s, %d decimals)", meta.Symbol, token.Hex(), meta.Decimals)
			} else if err != nil {
				logger.Warn("token metadata", zap.String("token", token.Hex()), zap.Error(err))
			}
		}
		fmt.Fprintf(out, "%d\t%s\t%s\n", i, amounts[i].Dec(), label)
	}
	return nil
}

func parsePath(items []string) ([]common.Address, error) {
	path := make([]common.Address, 0, len(items))
	for _, item := range items {
		if !common.IsHexAddress(item) {
			return nil, fmt.Errorf("invalid token address: %s", item)
		}
		path = append(path, common.HexToAddress(item))
	}
	return path, nil
}

// staticReserves builds a reserve source from "reserveIn:reserveOut"
// entries, one per hop of path.
func staticReserves(path []common.Address, entries []string) (*quote.StaticReserves, error) {
	src := quote.NewStaticReserves()
	for i, entry := range entries {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("hop %d: reserves must be reserveIn:reserveOut, got %q", i, entry)
		}
		reserveIn, err := uint256.FromDecimal(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("hop %d: reserve in: %w", i, err)
		}
		reserveOut, err := uint256.FromDecimal(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("hop %d: reserve out: %w", i, err)
		}
		if err := src.Set(path[i], path[i+1], reserveIn, reserveOut); err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return src, nil
}
