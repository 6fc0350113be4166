// Package config provides configuration management for the tracker.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultAssumedStopLossPct is recorded when a stop-loss notice closes an
	// order without an explicit exit price.
	defaultAssumedStopLossPct = -50.0
	// defaultExpiredLossPct is recorded when an order expires worthless.
	defaultExpiredLossPct = -100.0
	// defaultPollInterval is used when gateway.poll_interval is unset.
	defaultPollInterval = "30s"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Tracker     TrackerConfig     `yaml:"tracker"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// GatewayConfig defines the message relay API settings.
type GatewayConfig struct {
	BaseURL      string   `yaml:"base_url"`
	TokenEnv     string   `yaml:"token_env"`     // env var holding the relay token
	ChannelIDs   []string `yaml:"channel_ids"`   // channels to poll
	PollInterval string   `yaml:"poll_interval"` // e.g. "30s"
}

// ServerConfig defines the dashboard HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	AuthTokenEnv string `yaml:"auth_token_env"` // env var holding the dashboard token
}

// StorageConfig defines storage settings for the order ledger.
type StorageConfig struct {
	Path          string `yaml:"path"`
	FlushSchedule string `yaml:"flush_schedule"` // cron expression for periodic flushes
}

// TrackerConfig defines signal-tracking parameters.
type TrackerConfig struct {
	AssumedStopLossPct float64 `yaml:"assumed_stop_loss_pct"`
	ExpiredLossPct     float64 `yaml:"expired_loss_pct"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Gateway.PollInterval == "" {
		c.Gateway.PollInterval = defaultPollInterval
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9280
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/orders.json"
	}
	if c.Tracker.AssumedStopLossPct == 0 {
		c.Tracker.AssumedStopLossPct = defaultAssumedStopLossPct
	}
	if c.Tracker.ExpiredLossPct == 0 {
		c.Tracker.ExpiredLossPct = defaultExpiredLossPct
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	// Gateway is optional: with no base URL the tracker runs dashboard-only.
	if c.Gateway.BaseURL != "" {
		if len(c.Gateway.ChannelIDs) == 0 {
			return fmt.Errorf("gateway.channel_ids is required when gateway.base_url is set")
		}
		if _, err := time.ParseDuration(c.Gateway.PollInterval); err != nil {
			return fmt.Errorf("gateway.poll_interval invalid: %w", err)
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Tracker.AssumedStopLossPct > 0 {
		return fmt.Errorf("tracker.assumed_stop_loss_pct must be <= 0")
	}
	if c.Tracker.ExpiredLossPct > 0 {
		return fmt.Errorf("tracker.expired_loss_pct must be <= 0")
	}

	return nil
}

// GetPollInterval returns the configured gateway poll interval duration.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Gateway.PollInterval)
	if err != nil {
		return 30 * time.Second // default
	}
	return d
}

// GatewayToken resolves the relay token from the configured env var.
func (c *Config) GatewayToken() string {
	if c.Gateway.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Gateway.TokenEnv)
}

// ServerAuthToken resolves the dashboard auth token from the configured env var.
func (c *Config) ServerAuthToken() string {
	if c.Server.AuthTokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Server.AuthTokenEnv)
}
