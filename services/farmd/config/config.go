package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the farm daemon.
type Config struct {
	ListenAddress string           `yaml:"listen"`
	Environment   string           `yaml:"env"`
	DataDir       string           `yaml:"data_dir"`
	FarmConfig    string           `yaml:"farm_config"`
	Log           LogConfig        `yaml:"log"`
	Auth          AuthConfig       `yaml:"auth"`
	RateLimit     RateLimitConfig  `yaml:"rate_limit"`
	History       HistoryConfig    `yaml:"history"`
	Checkpoint    CheckpointConfig `yaml:"checkpoint"`
	Telemetry     TelemetryConfig  `yaml:"telemetry"`
}

// LogConfig selects the level and optional rotated file sink.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ScopeClaim string        `yaml:"scope_claim"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig throttles requests per client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// HistoryConfig selects the event history database.
type HistoryConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CheckpointConfig schedules MassUpdatePools runs. An empty schedule disables
// the job.
type CheckpointConfig struct {
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Headers     string  `yaml:"headers"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used for omitted fields.
func Default() Config {
	return Config{
		ListenAddress: ":8090",
		DataDir:       "data/farmd",
		FarmConfig:    "config/farm.toml",
		Log:           LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Auth:          AuthConfig{ScopeClaim: "scope", ClockSkew: 2 * time.Minute},
		RateLimit:     RateLimitConfig{RequestsPerMinute: 600, Burst: 60},
		History:       HistoryConfig{Driver: "sqlite"},
		Checkpoint:    CheckpointConfig{Schedule: "@every 1m"},
	}
}

// Load reads the YAML configuration from disk.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	def := Default()
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	if c.ListenAddress == "" {
		c.ListenAddress = def.ListenAddress
	}
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	c.FarmConfig = strings.TrimSpace(c.FarmConfig)
	if c.FarmConfig == "" {
		c.FarmConfig = def.FarmConfig
	}
	c.Auth.HMACSecret = strings.TrimSpace(c.Auth.HMACSecret)
	if c.Auth.ScopeClaim == "" {
		c.Auth.ScopeClaim = def.Auth.ScopeClaim
	}
	if c.Auth.ClockSkew <= 0 {
		c.Auth.ClockSkew = def.Auth.ClockSkew
	}
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	if c.History.Driver == "" {
		c.History.Driver = def.History.Driver
	}
	if c.History.Driver == "sqlite" && strings.TrimSpace(c.History.DSN) == "" {
		c.History.DSN = filepath.Join(c.DataDir, "history.db")
	}
	c.Checkpoint.Schedule = strings.TrimSpace(c.Checkpoint.Schedule)
}

// Validate checks the configuration for missing or inconsistent values.
func (c Config) Validate() error {
	if c.Auth.HMACSecret == "" {
		return fmt.Errorf("auth.hmac_secret is required")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("history.driver %q is not supported", c.History.Driver)
	}
	if c.History.DSN == "" {
		return fmt.Errorf("history.dsn is required for %s", c.History.Driver)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}
