// Package config loads host configuration for the weekfold CLI and daemon.
//
// Configuration comes from a YAML file (default ~/.weekfold/config.yaml),
// overridable per key by WEEKFOLD_* environment variables. The sync engine
// itself never reads configuration; hosts translate a Config into the
// explicit options and parameters the engine takes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the host configuration.
type Config struct {
	// UserID is the account whose data this device syncs.
	UserID string `mapstructure:"user_id"`

	// DatabasePath locates the local SQLite store.
	DatabasePath string `mapstructure:"database_path"`

	// RemoteURL is the backend's HTTP base URL.
	RemoteURL string `mapstructure:"remote_url"`

	// FeedURL is the realtime change-feed WebSocket URL. Empty disables
	// realtime hints; the daemon then relies on the periodic schedule.
	FeedURL string `mapstructure:"feed_url"`

	// APIToken authenticates both HTTP and feed connections.
	APIToken string `mapstructure:"api_token"`

	// Timezone drives the weekly rollover window. Empty means local time.
	Timezone string `mapstructure:"timezone"`

	SyncInterval time.Duration `mapstructure:"sync_interval"`

	RoutinesEnabled bool `mapstructure:"routines_enabled"`
	RolloverEnabled bool `mapstructure:"rollover_enabled"`

	// RolloverMarkerPath locates the once-per-week marker file.
	RolloverMarkerPath string `mapstructure:"rollover_marker_path"`

	// LogFile receives daemon logs (rotated). Empty logs to stderr.
	LogFile string `mapstructure:"log_file"`
}

// Load reads configuration from path, or from the default location when
// path is empty. The returned viper instance supports config watching.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".weekfold")

	// Every key gets a default so AutomaticEnv can bind it during Unmarshal.
	v.SetDefault("user_id", "")
	v.SetDefault("database_path", filepath.Join(base, "weekfold.db"))
	v.SetDefault("remote_url", "")
	v.SetDefault("feed_url", "")
	v.SetDefault("api_token", "")
	v.SetDefault("timezone", "")
	v.SetDefault("sync_interval", 5*time.Minute)
	v.SetDefault("routines_enabled", true)
	v.SetDefault("rollover_enabled", true)
	v.SetDefault("rollover_marker_path", filepath.Join(base, "rollover.json"))
	v.SetDefault("log_file", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(base)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("WEEKFOLD")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		// No config file is fine; env vars and defaults still apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.UserID == "" {
		return nil, nil, fmt.Errorf("user_id is required (config file or WEEKFOLD_USER_ID)")
	}
	if cfg.RemoteURL == "" {
		return nil, nil, fmt.Errorf("remote_url is required (config file or WEEKFOLD_REMOTE_URL)")
	}

	return &cfg, v, nil
}

// Location resolves the configured timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
