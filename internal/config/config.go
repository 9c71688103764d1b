package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall coordination-layer configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Commands CommandConfig  `yaml:"commands"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig holds logging output configuration.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// SweepConfig drives the periodic maintenance sweeps.
type SweepConfig struct {
	IntervalSeconds           int           `yaml:"interval_seconds"`
	Interval                  time.Duration `yaml:"-"`
	ReservationTimeoutSeconds int           `yaml:"reservation_timeout_seconds"`
	ReservationTimeout        time.Duration `yaml:"-"`
	CommandRetentionDays      int           `yaml:"command_retention_days"`
	EventRetentionDays        int           `yaml:"event_retention_days"`
	HistoryRetentionDays      int           `yaml:"history_retention_days"`
}

// CommandConfig holds command queue defaults.
type CommandConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelayMs int           `yaml:"retry_delay_ms"`
	RetryDelay   time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for tools
// that run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Database.DSN == "" {
		c.Database.DSN = "data/locker.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 30
	}
	if c.Sweep.IntervalSeconds <= 0 {
		c.Sweep.IntervalSeconds = 30
	}
	c.Sweep.Interval = time.Duration(c.Sweep.IntervalSeconds) * time.Second
	if c.Sweep.ReservationTimeoutSeconds <= 0 {
		c.Sweep.ReservationTimeoutSeconds = 90
	}
	c.Sweep.ReservationTimeout = time.Duration(c.Sweep.ReservationTimeoutSeconds) * time.Second
	if c.Sweep.CommandRetentionDays <= 0 {
		c.Sweep.CommandRetentionDays = 7
	}
	if c.Sweep.EventRetentionDays <= 0 {
		c.Sweep.EventRetentionDays = 90
	}
	if c.Sweep.HistoryRetentionDays <= 0 {
		c.Sweep.HistoryRetentionDays = 365
	}
	if c.Commands.MaxRetries <= 0 {
		c.Commands.MaxRetries = 3
	}
	if c.Commands.RetryDelayMs <= 0 {
		c.Commands.RetryDelayMs = 5000
	}
	c.Commands.RetryDelay = time.Duration(c.Commands.RetryDelayMs) * time.Millisecond
}
