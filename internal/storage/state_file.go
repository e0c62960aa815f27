package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"pairEngine/internal/model"
)

type stateFile struct {
	UpdatedAt string            `json:"updated_at"`
	Pairs     []model.PairState `json:"pairs"`
}

// StateFile keeps the latest pair snapshots in one JSON document,
// replaced atomically on every write.
type StateFile struct {
	path string
}

func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load returns the saved snapshots. A missing file is not an error.
func (f *StateFile) Load() ([]model.PairState, bool, error) {
	stat, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return nil, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, false, fmt.Errorf("read state file: %w", err)
	}
	var doc stateFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("parse state file: %w", err)
	}
	return doc.Pairs, true, nil
}

func (f *StateFile) PutPairStates(_ context.Context, states []model.PairState) error {
	if err := ensureDir(f.path); err != nil {
		return err
	}

	doc := stateFile{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Pairs:     states,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state file: %w", err)
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
