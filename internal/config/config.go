// Package config loads the daemon's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/warden-sh/warden/internal/logger"
	"github.com/warden-sh/warden/internal/record"
)

// Config is the top-level TOML structure.
type Config struct {
	// Listen is the API bind address, e.g. ":8420".
	Listen string `toml:"listen" mapstructure:"listen"`
	// AuthToken guards the API. Empty disables authentication.
	AuthToken string `toml:"auth_token" mapstructure:"auth_token"`
	// ServersDir holds one JSON record file per server.
	ServersDir string `toml:"servers_dir" mapstructure:"servers_dir"`

	// NATSURL enables the push channel when non-empty.
	NATSURL string `toml:"nats_url" mapstructure:"nats_url"`
	// HistoryDSN enables the history sink when non-empty (sqlite path,
	// postgres:// or clickhouse:// DSN).
	HistoryDSN string `toml:"history_dsn" mapstructure:"history_dsn"`

	// PingWorkers bounds concurrent probes across all servers.
	PingWorkers int `toml:"ping_workers" mapstructure:"ping_workers"`
	// GraceTimeout is the stop grace window applied to every server.
	GraceTimeout time.Duration `toml:"grace_timeout" mapstructure:"grace_timeout"`

	ZeroMaxAsOffline  bool `toml:"zero_max_as_offline" mapstructure:"zero_max_as_offline"`
	StopServersOnExit bool `toml:"stop_servers_on_exit" mapstructure:"stop_servers_on_exit"`

	PingDefaults PingDefaults  `toml:"ping_defaults" mapstructure:"ping_defaults"`
	Log          Log           `toml:"log" mapstructure:"log"`
	Console      logger.Config `toml:"console" mapstructure:"console"`
}

// PingDefaults fills records that omit their own ping settings.
type PingDefaults struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Timeout  time.Duration `toml:"timeout" mapstructure:"timeout"`
}

// Log configures the daemon's own structured log output.
type Log struct {
	Level string `toml:"level" mapstructure:"level"`
	Color bool   `toml:"color" mapstructure:"color"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:       ":8420",
		ServersDir:   "servers",
		PingWorkers:  8,
		GraceTimeout: 10 * time.Second,
		PingDefaults: PingDefaults{Interval: 30 * time.Second, Timeout: 5 * time.Second},
		Log:          Log{Level: "info", Color: true},
		Console:      logger.Config{Dir: "logs"},
	}
}

// Load reads a TOML file and overlays it on the defaults. Environment
// variables with the WARDEN_ prefix override file values.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix("warden")
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.ServersDir == "" {
		return fmt.Errorf("servers_dir must not be empty")
	}
	if c.PingWorkers <= 0 {
		return fmt.Errorf("ping_workers must be positive")
	}
	if c.GraceTimeout <= 0 {
		return fmt.Errorf("grace_timeout must be positive")
	}
	if c.PingDefaults.Interval <= 0 || c.PingDefaults.Timeout <= 0 {
		return fmt.Errorf("ping_defaults interval and timeout must be positive")
	}
	return nil
}

// ApplyPingDefaults fills zero ping settings on a record.
func (c *Config) ApplyPingDefaults(rec *record.Record) {
	if rec.Ping.Interval <= 0 {
		rec.Ping.Interval = c.PingDefaults.Interval
	}
	if rec.Ping.Timeout <= 0 {
		rec.Ping.Timeout = c.PingDefaults.Timeout
	}
}
