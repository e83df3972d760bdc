// Package config loads the watcher configuration from YAML with environment
// overrides for the values that differ per deployment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file values.
const (
	EnvAPIURL   = "UPVOTE_API_URL"
	EnvAPIToken = "UPVOTE_API_TOKEN"
)

// Config is the full watcher configuration.
type Config struct {
	API  APIConfig  `yaml:"api"`
	Poll PollConfig `yaml:"poll"`
	Ops  OpsConfig  `yaml:"ops"`
	Log  LogConfig  `yaml:"log"`
}

// APIConfig points the client at the account service.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PollConfig tunes the reconciliation engine.
type PollConfig struct {
	OrderIntervalSeconds   int     `yaml:"order_interval_seconds"`
	PaymentIntervalSeconds int     `yaml:"payment_interval_seconds"`
	FetchTimeoutSeconds    int     `yaml:"fetch_timeout_seconds"`
	RequestsPerSecond      float64 `yaml:"requests_per_second"`
	Burst                  int     `yaml:"burst"`
}

// OpsConfig configures the operational HTTP surface.
type OpsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 10,
		},
		Poll: PollConfig{
			OrderIntervalSeconds:   10,
			PaymentIntervalSeconds: 30,
			FetchTimeoutSeconds:    8,
			RequestsPerSecond:      5,
			Burst:                  10,
		},
		Ops: OpsConfig{
			ListenAddr: ":9180",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration from path, falling back to defaults when the
// path is empty or the file does not exist. Environment overrides apply in
// both cases.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := strings.TrimSpace(os.Getenv(EnvAPIURL)); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIToken)); v != "" {
		cfg.API.Token = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.Poll.OrderIntervalSeconds <= 0 {
		return fmt.Errorf("poll.order_interval_seconds must be positive")
	}
	if c.Poll.PaymentIntervalSeconds <= 0 {
		return fmt.Errorf("poll.payment_interval_seconds must be positive")
	}
	return nil
}

// APITimeout returns the per-request API timeout.
func (c Config) APITimeout() time.Duration {
	return secondsOr(c.API.TimeoutSeconds, 10*time.Second)
}

// OrderInterval returns the order session poll interval.
func (c Config) OrderInterval() time.Duration {
	return secondsOr(c.Poll.OrderIntervalSeconds, 10*time.Second)
}

// PaymentInterval returns the payment session poll interval.
func (c Config) PaymentInterval() time.Duration {
	return secondsOr(c.Poll.PaymentIntervalSeconds, 30*time.Second)
}

// FetchTimeout returns the bound on one status fetch.
func (c Config) FetchTimeout() time.Duration {
	return secondsOr(c.Poll.FetchTimeoutSeconds, 8*time.Second)
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
