package config

import "fmt"

// PersistenceConfig holds configuration for the Persistence Journal and
// the History Log's durability store.
type PersistenceConfig struct {
	// SnapshotPath is where the Persistence Journal writes its JSON
	// snapshot of the Domain Store.
	SnapshotPath string `mapstructure:"snapshot_path"`

	// HistoryPath is where the History Log's JSONL file lives.
	HistoryPath string `mapstructure:"history_path"`

	// SQLIndexEnabled turns on the derived, rebuildable SQL history
	// index backed by DatabaseConfig.
	SQLIndexEnabled bool `mapstructure:"sql_index_enabled"`
}

// Validate checks the persistence configuration.
func (p *PersistenceConfig) Validate() error {
	if p.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path must not be empty")
	}
	if p.HistoryPath == "" {
		return fmt.Errorf("history_path must not be empty")
	}
	return nil
}

// SetDefaults sets default values for persistence configuration.
func (p *PersistenceConfig) SetDefaults() {
	if p.SnapshotPath == "" {
		p.SnapshotPath = "smokestack-snapshot.json"
	}
	if p.HistoryPath == "" {
		p.HistoryPath = "smokestack-history.jsonl"
	}
}
