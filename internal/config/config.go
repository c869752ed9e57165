package config

import "fmt"

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Log         LogConfig         `mapstructure:"log"`
	Admission   AdmissionConfig   `mapstructure:"admission"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Sinks       SinksConfig       `mapstructure:"sinks"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// SetDefaults applies every sub-config's defaults.
func (c *Config) SetDefaults() {
	c.Admission.SetDefaults()
	c.Persistence.SetDefaults()
	c.Sinks.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.Admission.Validate(); err != nil {
		return fmt.Errorf("admission config: %w", err)
	}
	if err := c.Persistence.Validate(); err != nil {
		return fmt.Errorf("persistence config: %w", err)
	}
	if err := c.Sinks.Validate(); err != nil {
		return fmt.Errorf("sinks config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	return nil
}
