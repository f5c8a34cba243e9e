// Package config defines the droneforce gateway configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DF-AutoPilot/droneforce-contract/ledger"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server    ServerConfig `json:"server" yaml:"server"`
	Auth      AuthConfig   `json:"auth" yaml:"auth"`
	Ledger    LedgerConfig `json:"ledger" yaml:"ledger"`
	Events    EventsConfig `json:"events" yaml:"events"`
	DataDir   string       `json:"data_dir" yaml:"data_dir"`
	LogLevel  string       `json:"log_level" yaml:"log_level"`
	LogFormat string       `json:"log_format" yaml:"log_format"` // "text" or "json"
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string        `json:"admin_user" yaml:"admin_user"`
	AdminPass string        `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
	TokenTTL  time.Duration `json:"token_ttl" yaml:"token_ttl"`
}

// LedgerConfig selects the storage backend.
type LedgerConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "memory", "sqlite", "leveldb"
	Path   string `json:"path,omitempty" yaml:"path"` // defaults to a file under DataDir
}

// EventsConfig controls the in-process event bus.
type EventsConfig struct {
	History int `json:"history" yaml:"history"` // messages retained for replay
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
			TokenTTL:  24 * time.Hour,
		},
		Ledger: LedgerConfig{
			Driver: ledger.DriverSQLite,
		},
		Events: EventsConfig{
			History: 1000,
		},
		DataDir:   "./data",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Ledger.Driver {
	case ledger.DriverMemory, ledger.DriverSQLite, ledger.DriverLevelDB:
	default:
		errs = append(errs, fmt.Errorf("ledger.driver %q is not one of memory, sqlite, leveldb", c.Ledger.Driver))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Events.History < 0 {
		errs = append(errs, errors.New("events.history must not be negative"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q is not one of text, json", c.LogFormat))
	}
	return errors.Join(errs...)
}

// LedgerPath returns the configured ledger path, or the default location
// under DataDir for the driver.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	switch c.Ledger.Driver {
	case ledger.DriverLevelDB:
		return filepath.Join(c.DataDir, "ledger")
	default:
		return filepath.Join(c.DataDir, "droneforce.db")
	}
}
