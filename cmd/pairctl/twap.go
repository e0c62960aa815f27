package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairEngine/internal/chain"
	"pairEngine/internal/config"
	"pairEngine/internal/dex"
	"pairEngine/internal/oracle"
	"pairEngine/internal/uq"
)

func runTWAP(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTWAP(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	toBlock := cfg.ToBlock
	if toBlock == 0 {
		toBlock, err = chainClient.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}
	if toBlock <= cfg.FromBlock {
		return fmt.Errorf("to block %d must be after from block %d", toBlock, cfg.FromBlock)
	}

	reader := dex.NewPairReader(chainClient, dex.ReaderConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})
	pair := common.HexToAddress(cfg.Pair)

	start, err := observeAt(ctx, chainClient, reader, pair, cfg.FromBlock)
	if err != nil {
		return err
	}
	end, err := observeAt(ctx, chainClient, reader, pair, toBlock)
	if err != nil {
		return err
	}

	priceA, priceB, err := oracle.Average(start, end)
	if err != nil {
		return fmt.Errorf("average: %w", err)
	}

	logger.Info("twap",
		zap.Uint64("chain_id", chainID),
		zap.String("pair", pair.Hex()),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", toBlock),
		zap.Uint32("seconds", oracle.Elapsed(start.Timestamp, end.Timestamp)),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "price0\t%s\n", uq.FloatString(priceA, 18))
	fmt.Fprintf(out, "price1\t%s\n", uq.FloatString(priceB, 18))

	if cfg.Amount != "" {
		amount, err := uint256.FromDecimal(cfg.Amount)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		out0, err := oracle.Consult(priceA, amount)
		if err != nil {
			return err
		}
		out1, err := oracle.Consult(priceB, amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s token0 -> %s token1\n", amount.Dec(), out0.Dec())
		fmt.Fprintf(out, "%s token1 -> %s token0\n", amount.Dec(), out1.Dec())
	}
	return nil
}

// observeAt reads the pair's cumulative prices as of the timestamp of block.
func observeAt(ctx context.Context, client *chain.Client, reader *dex.PairReader, pair common.Address, block uint64) (oracle.Accumulator, error) {
	ts, err := client.BlockTime(ctx, block)
	if err != nil {
		return oracle.Accumulator{}, err
	}
	acc, err := reader.CurrentCumulativePrices(ctx, pair, new(big.Int).SetUint64(block), ts)
	if err != nil {
		return oracle.Accumulator{}, fmt.Errorf("block %d cumulative prices: %w", block, err)
	}
	return acc, nil
}
