// Package config handles configuration loading.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects the key-value storage backend.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`      // sqlite, postgres or memory
	Path       string `yaml:"path"`        // sqlite file path
	ConnString string `yaml:"conn_string"` // postgres connection string
}

// ConversionConfig controls the feed-to-JSON conversion API client.
type ConversionConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PushConfig holds web-push (VAPID) credentials.
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Contact         string `yaml:"contact"` // mailto or https contact for VAPID
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Config is the application configuration.
type Config struct {
	ListenAddr             string           `yaml:"listen_addr"`
	Database               DatabaseConfig   `yaml:"database"`
	Conversion             ConversionConfig `yaml:"conversion"`
	RefreshIntervalMinutes int              `yaml:"refresh_interval_minutes"`
	CacheTTLMinutes        int              `yaml:"cache_ttl_minutes"`
	Push                   PushConfig       `yaml:"push"`
	Log                    LogConfig        `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "rabbit.db",
		},
		Conversion: ConversionConfig{
			Enabled:        true,
			BaseURL:        "https://api.rss2json.com/v1/api.json",
			TimeoutSeconds: 10,
		},
		RefreshIntervalMinutes: 120,
		CacheTTLMinutes:        5,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration file at path, filling absent values with
// defaults. A missing file yields the pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "rabbit.db"
	}
	if cfg.Conversion.BaseURL == "" {
		cfg.Conversion.BaseURL = "https://api.rss2json.com/v1/api.json"
	}
	if cfg.Conversion.TimeoutSeconds <= 0 {
		cfg.Conversion.TimeoutSeconds = 10
	}
	if cfg.RefreshIntervalMinutes <= 0 {
		cfg.RefreshIntervalMinutes = 120
	}
	if cfg.CacheTTLMinutes <= 0 {
		cfg.CacheTTLMinutes = 5
	}
	return cfg, nil
}
