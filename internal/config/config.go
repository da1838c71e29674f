package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ring-scanner/internal/types"
)

type Config struct {
	Scan    ScanConfig    `json:"scan"`
	Output  OutputConfig  `json:"output"`
	API     APIConfig     `json:"api"`
	Storage StorageConfig `json:"storage"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

type ScanConfig struct {
	Hosts           []string `json:"hosts"`
	Ports           string   `json:"ports"`
	Count           int      `json:"count"`
	TimeoutMs       int      `json:"timeout_ms"`
	Ping            bool     `json:"ping"`
	PingTimeoutMs   int      `json:"ping_timeout_ms"`
	Once            bool     `json:"once"`
	IntervalSeconds int      `json:"interval_seconds"`
	Concurrency     int      `json:"concurrency"`     // 0 = unbounded
	RatePerSecond   float64  `json:"rate_per_second"` // 0 = unlimited
}

type OutputConfig struct {
	JSON   bool         `json:"json"`
	Quiet  bool         `json:"quiet"`
	PubSub PubSubConfig `json:"pubsub"`
}

type PubSubConfig struct {
	ProjectID string `json:"project_id"`
	Topic     string `json:"topic"`
}

type APIConfig struct {
	Addr               string `json:"addr"` // empty disables the server
	APIKeyEnv          string `json:"api_key_env"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	EnableAPIKeyAuth   bool   `json:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `json:"enable_ip_rate_limit"`
}

type StorageConfig struct {
	Type         string `json:"type"` // "none", "file", "sqlite", "redis"
	Path         string `json:"path"`
	HistoryLimit int    `json:"history_limit"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "text" or "json"
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{
		Scan: ScanConfig{
			Ports:       "80",
			Concurrency: 512,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from a JSON file and applies defaults. An empty
// path yields the defaults. Validation is left to the caller so that command
// line overrides can be applied first.
func Load(filePath string) (*Config, error) {
	if filePath == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Fields absent from the file keep their defaults. Ports and concurrency
	// are not refilled afterwards since "" and 0 are meaningful there.
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Scan.Count == 0 {
		c.Scan.Count = 3
	}
	if c.Scan.TimeoutMs == 0 {
		c.Scan.TimeoutMs = 2000
	}
	if c.Scan.PingTimeoutMs == 0 {
		c.Scan.PingTimeoutMs = 1000
	}
	if c.Scan.IntervalSeconds == 0 {
		c.Scan.IntervalSeconds = 5
	}
	if c.API.APIKeyEnv == "" {
		c.API.APIKeyEnv = "RING_API_KEY"
	}
	if c.API.RateLimitPerMinute == 0 {
		c.API.RateLimitPerMinute = 600
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.Storage.HistoryLimit == 0 {
		c.Storage.HistoryLimit = 100
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ring"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity. Host and port syntax are checked
// by the target expander.
func (c *Config) Validate() error {
	if c.Scan.Count < 1 || c.Scan.Count > 10000 {
		return types.NewConfigError("count", fmt.Sprint(c.Scan.Count), "must be between 1 and 10000")
	}
	if c.Scan.TimeoutMs < 1 || c.Scan.TimeoutMs > 300000 {
		return types.NewConfigError("timeout", fmt.Sprint(c.Scan.TimeoutMs), "must be between 1 and 300000 ms")
	}
	if c.Scan.PingTimeoutMs < 1 || c.Scan.PingTimeoutMs > 300000 {
		return types.NewConfigError("ping timeout", fmt.Sprint(c.Scan.PingTimeoutMs), "must be between 1 and 300000 ms")
	}
	if c.Scan.IntervalSeconds < 1 {
		return types.NewConfigError("interval", fmt.Sprint(c.Scan.IntervalSeconds), "must be at least 1 second")
	}
	if c.Scan.Concurrency < 0 || c.Scan.Concurrency > 100000 {
		return types.NewConfigError("concurrency", fmt.Sprint(c.Scan.Concurrency), "must be between 0 and 100000")
	}
	if c.Scan.RatePerSecond < 0 {
		return types.NewConfigError("rate", fmt.Sprint(c.Scan.RatePerSecond), "must not be negative")
	}
	switch c.Storage.Type {
	case "none", "file", "sqlite", "redis":
	default:
		return types.NewConfigError("storage type", c.Storage.Type, "must be 'none', 'file', 'sqlite', or 'redis'")
	}
	if c.Storage.Type != "none" && c.Storage.Path == "" {
		return types.NewConfigError("storage path", "", "required for storage type "+c.Storage.Type)
	}
	if c.Storage.HistoryLimit < 1 {
		return types.NewConfigError("history limit", fmt.Sprint(c.Storage.HistoryLimit), "must be positive")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return types.NewConfigError("log format", c.Logging.Format, "must be 'text' or 'json'")
	}
	if c.Output.PubSub.Topic != "" && c.Output.PubSub.ProjectID == "" {
		return types.NewConfigError("pubsub project", "", "required when a topic is set")
	}
	return nil
}

func (s ScanConfig) TCPTimeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

func (s ScanConfig) ICMPTimeout() time.Duration {
	return time.Duration(s.PingTimeoutMs) * time.Millisecond
}

func (s ScanConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}
