// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package config loads linkstash settings from defaults, an optional YAML
// file, a dotenv file, the environment and command-line flags, in that
// order of precedence (later wins).
package config

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/logging"
)

// Default values.
const (
	DefaultHTTPAddr       = ":5000"
	DefaultMetricsAddr    = "127.0.0.1:9100"
	DefaultConnectTimeout = 30 * time.Second
	DefaultLogFormat      = "json"
	DefaultLogLevel       = "info"
)

// Config is the effective process configuration.
type Config struct {
	HTTP        HTTPConfig     `koanf:"http" json:"http,omitempty" yaml:"http"`
	MetricsAddr string         `koanf:"metrics_addr" json:"metrics_addr,omitempty" yaml:"metrics_addr" jsonschema:"description=Metrics and health probe listen address. Empty disables the listener."`
	Database    DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	Auth        AuthConfig     `koanf:"auth" json:"auth,omitempty" yaml:"auth"`
	Log         LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=API listen address in host:port form."`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL            string        `koanf:"url" json:"url,omitempty" yaml:"url,omitempty" jsonschema:"description=PostgreSQL connection URL."`
	ConnectTimeout time.Duration `koanf:"connect_timeout" json:"connect_timeout,omitempty" yaml:"connect_timeout"`
	AutoMigrate    bool          `koanf:"auto_migrate" json:"auto_migrate,omitempty" yaml:"auto_migrate" jsonschema:"description=Apply pending migrations when serve starts."`
}

// AuthConfig configures password hashing and tokens.
type AuthConfig struct {
	SecretKey string        `koanf:"secret_key" json:"secret_key,omitempty" yaml:"secret_key,omitempty" jsonschema:"minLength=32"`
	TokenTTL  time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" yaml:"token_ttl"`
	Argon2    Argon2Config  `koanf:"argon2" json:"argon2,omitempty" yaml:"argon2"`
}

// Argon2Config holds the argon2id cost parameters for new digests.
type Argon2Config struct {
	Time    uint32 `koanf:"time" json:"time,omitempty" yaml:"time" jsonschema:"minimum=1"`
	Memory  uint32 `koanf:"memory" json:"memory,omitempty" yaml:"memory" jsonschema:"description=Memory cost in KiB."`
	Threads uint8  `koanf:"threads" json:"threads,omitempty" yaml:"threads" jsonschema:"minimum=1"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the built-in configuration. It fails Validate until a
// database URL and secret key are supplied.
func Default() Config {
	params := auth.DefaultArgon2Params()
	return Config{
		HTTP:        HTTPConfig{Addr: DefaultHTTPAddr},
		MetricsAddr: DefaultMetricsAddr,
		Database: DatabaseConfig{
			ConnectTimeout: DefaultConnectTimeout,
			AutoMigrate:    true,
		},
		Auth: AuthConfig{
			TokenTTL: auth.DefaultTokenTTL,
			Argon2: Argon2Config{
				Time:    params.Time,
				Memory:  params.Memory,
				Threads: params.Threads,
			},
		},
		Log: LogConfig{Format: DefaultLogFormat, Level: DefaultLogLevel},
	}
}

// Validate checks the configuration for serving.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if c.Database.URL == "" {
		return invalid("database.url", "is required")
	}
	if c.Database.ConnectTimeout <= 0 {
		return invalid("database.connect_timeout", "must be positive")
	}
	if err := c.ValidateAuth(); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}
	return nil
}

// ValidateAuth checks only the token and hashing settings.
func (c *Config) ValidateAuth() error {
	if len(c.Auth.SecretKey) < auth.MinSecretKeyLength {
		return invalid("auth.secret_key", "must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return invalid("auth.token_ttl", "must be positive")
	}
	if err := c.Argon2Params().Validate(); err != nil {
		return oops.Code("CONFIG_INVALID").With("key", "auth.argon2").Errorf("auth.argon2 %v", err)
	}
	return nil
}

// Argon2Params converts the configured cost to hasher parameters.
func (c *Config) Argon2Params() auth.Argon2Params {
	return auth.Argon2Params{
		Time:    c.Auth.Argon2.Time,
		Memory:  c.Auth.Argon2.Memory,
		Threads: c.Auth.Argon2.Threads,
	}
}

// LogLevel returns the configured slog level, info if unparseable.
func (c *Config) LogLevel() slog.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

const redacted = "********"

// Redacted returns a copy safe to print: the secret key is masked and the
// database URL loses its password.
func (c Config) Redacted() Config {
	if c.Auth.SecretKey != "" {
		c.Auth.SecretKey = redacted
	}
	if u, err := url.Parse(c.Database.URL); err == nil {
		c.Database.URL = u.Redacted()
	}
	return c
}

func invalid(key, reason string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, reason)
}
