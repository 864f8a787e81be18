// Package config loads runner configuration from a YAML file with
// environment overrides (prefix NATSCRIPT).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/c360/natscript/errors"
)

// Config holds runner settings. Script metadata always wins over these
// defaults; the default server only applies to blocks that name a subject
// without a server of their own via the CLI.
type Config struct {
	// Server is the default broker address.
	Server string `yaml:"server" envconfig:"SERVER"`
	// RequestTimeout applies to requests without a NATS-Timeout header.
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	// ConnectTimeout bounds the connection handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT"`
	LogLevel       string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat      string        `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server:         "nats://127.0.0.1:4222",
		RequestTimeout: 5 * time.Second,
		ConnectTimeout: 5 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	if err := envconfig.Process("natscript", cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "apply environment overrides")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for setup mistakes
func (c *Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: request_timeout must be positive", errors.ErrInvalidConfig),
			"config", "Validate", "check request_timeout")
	}
	if c.ConnectTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: connect_timeout must be positive", errors.ErrInvalidConfig),
			"config", "Validate", "check connect_timeout")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid log_level %q", errors.ErrInvalidConfig, c.LogLevel),
			"config", "Validate", "check log_level")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: invalid log_format %q", errors.ErrInvalidConfig, c.LogFormat),
			"config", "Validate", "check log_format")
	}
	return nil
}
