package config

import "fmt"

// MetricsConfig holds configuration for the prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Validate checks the metrics configuration.
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Path == "" {
		return fmt.Errorf("path must not be empty when metrics are enabled")
	}
	return nil
}

// SetDefaults sets default values for metrics configuration.
func (m *MetricsConfig) SetDefaults() {
	if m.Path == "" {
		m.Path = "/metrics"
	}
}
