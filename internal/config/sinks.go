package config

import (
	"fmt"
	"time"
)

// SinksConfig holds configuration for System Sink delivery.
type SinksConfig struct {
	// Workers is the number of concurrent sink-delivery worker goroutines
	// draining the retry queue.
	Workers int `mapstructure:"workers"`

	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`

	// RecoveryProbeSchedule is the robfig/cron expression the degraded
	// sink recovery probe runs on.
	RecoveryProbeSchedule string `mapstructure:"recovery_probe_schedule"`

	// RateLimitPerSecond and RateLimitBurst bound delivery throughput per
	// sink (golang.org/x/time/rate token bucket).
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
}

// Validate checks the sinks configuration.
func (s *SinksConfig) Validate() error {
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if s.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery_timeout must be positive")
	}
	if s.RecoveryProbeSchedule == "" {
		return fmt.Errorf("recovery_probe_schedule must not be empty")
	}
	if s.RateLimitPerSecond <= 0 {
		return fmt.Errorf("rate_limit_per_second must be positive")
	}
	if s.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_burst must be positive")
	}
	return nil
}

// SetDefaults sets default values for sinks configuration.
func (s *SinksConfig) SetDefaults() {
	if s.Workers == 0 {
		s.Workers = 3
	}
	if s.DeliveryTimeout == 0 {
		s.DeliveryTimeout = 10 * time.Second
	}
	if s.RecoveryProbeSchedule == "" {
		s.RecoveryProbeSchedule = "@every 5m"
	}
	if s.RateLimitPerSecond == 0 {
		s.RateLimitPerSecond = 5
	}
	if s.RateLimitBurst == 0 {
		s.RateLimitBurst = 10
	}
}
