package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Orderflow OrderflowConfig `yaml:"orderflow"`
	Feed      FeedConfig      `yaml:"feed"`
	Rest      RestConfig      `yaml:"rest"`
	Store     StoreConfig     `yaml:"store"`
	Symbols   []string        `yaml:"symbols"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type OrderflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// FeedConfig tunes the streaming connection state machine.
// Intervals are expressed in milliseconds in the YAML file.
type FeedConfig struct {
	Enabled              bool   `yaml:"enabled"`
	URL                  string `yaml:"url"`
	ConnectTimeoutMS     int    `yaml:"connect_timeout_ms"`
	HeartbeatIntervalMS  int    `yaml:"heartbeat_interval_ms"`
	ReconnectBaseDelayMS int    `yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMS  int    `yaml:"reconnect_max_delay_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
}

func (f FeedConfig) ConnectTimeout() time.Duration {
	return time.Duration(f.ConnectTimeoutMS) * time.Millisecond
}

func (f FeedConfig) HeartbeatInterval() time.Duration {
	return time.Duration(f.HeartbeatIntervalMS) * time.Millisecond
}

func (f FeedConfig) ReconnectBaseDelay() time.Duration {
	return time.Duration(f.ReconnectBaseDelayMS) * time.Millisecond
}

func (f FeedConfig) ReconnectMaxDelay() time.Duration {
	return time.Duration(f.ReconnectMaxDelayMS) * time.Millisecond
}

// RestConfig tunes the polling fallback client.
type RestConfig struct {
	BaseURL        string          `yaml:"base_url"`
	TimeoutMS      int             `yaml:"timeout_ms"`
	CacheTTLMS     int             `yaml:"cache_ttl_ms"`
	PollIntervalMS int             `yaml:"poll_interval_ms"`
	Retry          RetryConfig     `yaml:"retry"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

func (r RestConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

func (r RestConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLMS) * time.Millisecond
}

func (r RestConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMS) * time.Millisecond
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StoreConfig struct {
	StaleAfterMS int `yaml:"stale_after_ms"`
}

func (s StoreConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterMS) * time.Millisecond
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type TelemetryConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads a YAML configuration file from the specified path, applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Orderflow.Name == "" {
		c.Orderflow.Name = "orderflow"
	}
	if c.Feed.ConnectTimeoutMS <= 0 {
		c.Feed.ConnectTimeoutMS = 10_000
	}
	if c.Feed.HeartbeatIntervalMS <= 0 {
		c.Feed.HeartbeatIntervalMS = 30_000
	}
	if c.Feed.ReconnectBaseDelayMS <= 0 {
		c.Feed.ReconnectBaseDelayMS = 3_000
	}
	if c.Feed.ReconnectMaxDelayMS <= 0 {
		c.Feed.ReconnectMaxDelayMS = 30_000
	}
	if c.Feed.MaxReconnectAttempts <= 0 {
		c.Feed.MaxReconnectAttempts = 10
	}
	if c.Rest.TimeoutMS <= 0 {
		c.Rest.TimeoutMS = 10_000
	}
	if c.Rest.CacheTTLMS <= 0 {
		c.Rest.CacheTTLMS = 5_000
	}
	if c.Rest.PollIntervalMS <= 0 {
		c.Rest.PollIntervalMS = 2_000
	}
	if c.Rest.Retry.MaxAttempts <= 0 {
		c.Rest.Retry.MaxAttempts = 3
	}
	if c.Rest.Retry.BaseDelayMS <= 0 {
		c.Rest.Retry.BaseDelayMS = 1_000
	}
	if c.Rest.RateLimit.RequestsPerSecond <= 0 {
		c.Rest.RateLimit.RequestsPerSecond = 10
	}
	if c.Rest.RateLimit.BurstSize <= 0 {
		c.Rest.RateLimit.BurstSize = 20
	}
	if c.Store.StaleAfterMS <= 0 {
		c.Store.StaleAfterMS = 10_000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Telemetry.Prometheus.Listen == "" {
		c.Telemetry.Prometheus.Listen = "0.0.0.0:2112"
	}
}

func (c *Config) validate() error {
	if c.Feed.Enabled && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when the feed is enabled")
	}
	if c.Rest.BaseURL == "" {
		return fmt.Errorf("rest.base_url is required")
	}
	if c.Feed.ReconnectBaseDelayMS > c.Feed.ReconnectMaxDelayMS {
		return fmt.Errorf("feed.reconnect_base_delay_ms exceeds feed.reconnect_max_delay_ms")
	}
	return nil
}
