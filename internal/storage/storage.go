// Package storage persists the log records and pair snapshots produced
// by a run.
package storage

import (
	"context"

	"pairEngine/internal/model"
)

// Storage defines a sink for log records.
type Storage interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// StateStore persists pair snapshots.
type StateStore interface {
	PutPairStates(ctx context.Context, states []model.PairState) error
}

// Multi fans a batch out to several sinks and stops at the first error.
type Multi []Storage

func (m Multi) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, s := range m {
		if err := s.PutLogBatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}

// MultiState is Multi for pair snapshots.
type MultiState []StateStore

func (m MultiState) PutPairStates(ctx context.Context, states []model.PairState) error {
	for _, s := range m {
		if err := s.PutPairStates(ctx, states); err != nil {
			return err
		}
	}
	return nil
}
