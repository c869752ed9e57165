// Package persistence implements the Persistence Journal: a durable
// snapshot of the Domain Store written temp-file-then-rename on every
// commit, and loaded once at startup.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/store"
)

// Journal writes and loads the single-document JSON snapshot.
type Journal struct {
	path   string
	logger *zap.Logger
}

// New returns a Journal writing to path.
func New(path string, logger *zap.Logger) *Journal {
	return &Journal{path: path, logger: logger.With(zap.String("component", "persistence-journal"))}
}

// Write serializes snap and atomically replaces the journal file: write
// to a temp file in the same directory, fsync, then rename over the
// target.
func (j *Journal) Write(snap store.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(j.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp snapshot file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Load reads the snapshot at path. A missing file is not an error: it
// means this is the first run, and callers should start from an empty
// store.
func (j *Journal) Load() (store.Snapshot, bool, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.Snapshot{}, false, nil
		}
		return store.Snapshot{}, false, fmt.Errorf("read snapshot file: %w", err)
	}
	var snap store.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, true, nil
}
