package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultStateFile = "inventory.json"
	defaultLedgerDB  = "uploads.db"
)

// Config holds all application configuration
type Config struct {
	// Listener
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Cache directory holding photos and, by default, the state file and ledger
	CacheDir string `mapstructure:"cache"`

	// Persistence
	Persist   bool   `mapstructure:"persist"`
	StateFile string `mapstructure:"state-file"`
	LedgerDB  string `mapstructure:"ledger-db"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`

	// Security limits
	MaxUploadBytes int64 `mapstructure:"max-upload-bytes"`
}

// Load layers configuration from v's bound flags, the environment, an optional
// config.yaml in the working directory, and defaults, in that order of
// precedence.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("persist", true)
	v.SetDefault("state-file", "")
	v.SetDefault("ledger-db", "")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
	v.SetDefault("max-upload-bytes", 50*1024*1024)

	// Environment variables (will be INVENTORY_HOST, INVENTORY_STATE_FILE, etc.)
	v.SetEnvPrefix("INVENTORY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{"host", "port", "cache"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.StateFile == "" && cfg.CacheDir != "" {
		cfg.StateFile = filepath.Join(cfg.CacheDir, defaultStateFile)
	}
	if cfg.LedgerDB == "" && cfg.CacheDir != "" {
		cfg.LedgerDB = filepath.Join(cfg.CacheDir, defaultLedgerDB)
	}

	return &cfg, nil
}

// Addr is the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache cannot be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max-upload-bytes must be positive")
	}
	return nil
}
