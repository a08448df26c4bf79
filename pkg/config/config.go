// Package config loads flowsentry configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/flowsentry/flowsentry/pkg/stream"
)

// Config is the full application configuration.
type Config struct {
	App      AppConfig     `mapstructure:"app"`
	Detector stream.Config `mapstructure:"detector"`
	Output   OutputConfig  `mapstructure:"output"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// OutputConfig holds reporting and observability settings.
type OutputConfig struct {
	// JSONPath, when set, appends one JSON object per finding to this file.
	JSONPath string `mapstructure:"json_path"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `mapstructure:"metrics_addr"`
	// StatusEvery prints a progress line every N events; 0 disables it.
	StatusEvery int `mapstructure:"status_every"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		App:      AppConfig{LogLevel: "info"},
		Detector: stream.DefaultConfig(),
		Output:   OutputConfig{StatusEvery: 0},
	}
}

// Load reads configuration from an optional YAML file, overlaid by
// FLOWSENTRY_* environment variables. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("app.log_level", defaults.App.LogLevel)
	v.SetDefault("detector.n_trees", defaults.Detector.NTrees)
	v.SetDefault("detector.buffer_size", defaults.Detector.BufferSize)
	v.SetDefault("detector.threshold", defaults.Detector.Threshold)
	v.SetDefault("detector.retrain_interval", defaults.Detector.RetrainInterval)
	v.SetDefault("output.json_path", defaults.Output.JSONPath)
	v.SetDefault("output.metrics_addr", defaults.Output.MetricsAddr)
	v.SetDefault("output.status_every", defaults.Output.StatusEvery)

	v.SetEnvPrefix("FLOWSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	switch c.App.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("config: unknown log level %q", c.App.LogLevel)
	}
	if c.Output.StatusEvery < 0 {
		return fmt.Errorf("config: status_every must be non-negative, got %d", c.Output.StatusEvery)
	}
	return c.Detector.Validate()
}
