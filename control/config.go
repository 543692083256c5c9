// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Daemon configuration: defaults, YAML file loading and validation.

package control

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/momentics/uhttp/api"
)

// Config is the uhttpd runtime configuration.
type Config struct {
	Listen         string  `yaml:"listen"`
	Backlog        int     `yaml:"backlog"`
	MaxConnections int     `yaml:"max_connections"`
	PassRate       float64 `yaml:"pass_rate"`
	MetricsAddr    string  `yaml:"metrics_addr"`
	LogLevel       string  `yaml:"log_level"`
	Echo           bool    `yaml:"echo"`
}

// DefaultConfig mirrors the reference daemon: 127.0.0.1:8080, default backlog.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Backlog:  0,
		PassRate: 1000,
		LogLevel: "info",
	}
}

// LoadConfig reads path over the defaults. An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	if _, err := c.BindAddr(); err != nil {
		return err
	}
	if c.Backlog < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "backlog must not be negative").WithContext("backlog", c.Backlog)
	}
	if c.MaxConnections < 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "max_connections must not be negative").WithContext("max_connections", c.MaxConnections)
	}
	if c.PassRate <= 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "pass_rate must be positive").WithContext("pass_rate", c.PassRate)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// BindAddr parses Listen.
func (c *Config) BindAddr() (api.Address, error) {
	return api.ParseAddress(c.Listen)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, api.WrapError(api.ErrCodeInvalidArgument, "log_level", err).WithContext("log_level", c.LogLevel)
	}
	return lvl, nil
}
