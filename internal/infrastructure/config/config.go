package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the IPC layer.
type Config struct {
	Logging LogConfig
	IPC     IPCConfig
	Metrics MetricsConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// IPCConfig holds command buffer translation settings.
type IPCConfig struct {
	// StrictHeader rejects headers with reserved bits set.
	StrictHeader bool `envconfig:"IPC_STRICT_HEADER" default:"true"`
	// TraceDescriptors logs every descriptor at debug level.
	TraceDescriptors bool `envconfig:"IPC_TRACE_DESCRIPTORS" default:"false"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"hle"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		IPC: IPCConfig{
			StrictHeader:     true,
			TraceDescriptors: false,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "hle",
		},
	}
}
