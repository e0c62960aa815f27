package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pairEngine/internal/config"
	"pairEngine/internal/dex"
	"pairEngine/internal/model"
	"pairEngine/internal/storage"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	records, err := storage.ReadLogs(cfg.In)
	if err != nil {
		return err
	}
	events, skipped, err := decodeLogs(records, logger)
	if err != nil {
		return err
	}
	if err := storage.WriteEvents(cfg.Out, events); err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.Int("total", len(records)),
		zap.Int("decoded", len(events)),
		zap.Int("skipped", skipped),
	)
	return nil
}

// decodeLogs decodes pair logs and skips records with unknown topics.
// A known topic that fails to decode is an error.
func decodeLogs(records []model.LogRecord, logger *zap.Logger) ([]*model.TypedEvent, int, error) {
	decoder, err := dex.NewPairDecoder()
	if err != nil {
		return nil, 0, err
	}

	events := make([]*model.TypedEvent, 0, len(records))
	skipped := 0
	for _, record := range records {
		if len(record.Topics) == 0 || !decoder.CanDecode(record.Topics[0]) {
			skipped++
			logger.Debug("skip log", zap.Uint64("block", record.BlockNumber), zap.Uint64("log_index", record.LogIndex))
			continue
		}
		event, err := decoder.Decode(record)
		if err != nil {
			return nil, 0, fmt.Errorf("decode log %d/%d: %w", record.BlockNumber, record.LogIndex, err)
		}
		events = append(events, event)
	}
	return events, skipped, nil
}
