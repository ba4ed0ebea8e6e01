// Package config loads readless settings from defaults and an optional
// TOML or YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `toml:"database" yaml:"database"`
	Fetch    FetchConfig    `toml:"fetch" yaml:"fetch"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

type DatabaseConfig struct {
	Driver string `toml:"driver" yaml:"driver"` // sqlite, postgres
	Path   string `toml:"path" yaml:"path"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type FetchConfig struct {
	Timeout   time.Duration `toml:"timeout" yaml:"timeout"`
	UserAgent string        `toml:"user_agent" yaml:"user_agent"`
}

type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
	// PollSchedule is a standard cron spec; empty disables polling.
	PollSchedule string `toml:"poll_schedule" yaml:"poll_schedule"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"` // text, json
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "readless.db",
		},
		Fetch: FetchConfig{
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			PollSchedule: "*/30 * * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns the defaults overlaid with the file at path. An empty path
// means defaults only. The format is chosen by extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q (want sqlite or postgres)", c.Database.Driver)
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}

	if c.Server.PollSchedule != "" {
		if _, err := cron.ParseStandard(c.Server.PollSchedule); err != nil {
			return fmt.Errorf("invalid server.poll_schedule %q: %w", c.Server.PollSchedule, err)
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// DataSource returns the driver-specific location of the database.
func (c *Config) DataSource() string {
	if c.Database.Driver == "postgres" {
		return c.Database.DSN
	}
	return c.Database.Path
}
