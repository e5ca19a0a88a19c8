// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// use a double underscore: LINKSTASH_AUTH__SECRET_KEY sets auth.secret_key.
const EnvPrefix = "LINKSTASH_"

// Flag names registered by RegisterFlags.
const (
	FlagAddr        = "addr"
	FlagMetricsAddr = "metrics-addr"
	FlagDatabaseURL = "database-url"
	FlagAutoMigrate = "auto-migrate"
	FlagLogFormat   = "log-format"
	FlagLogLevel    = "log-level"
)

var flagKeys = map[string]string{
	FlagAddr:        "http.addr",
	FlagMetricsAddr: "metrics_addr",
	FlagDatabaseURL: "database.url",
	FlagAutoMigrate: "database.auto_migrate",
	FlagLogFormat:   "log.format",
	FlagLogLevel:    "log.level",
}

// Options selects the sources Load reads.
type Options struct {
	// File is a YAML config path. It must exist when set.
	File string
	// DefaultFile is read only if it exists. Ignored when File is set.
	DefaultFile string
	// EnvFile is a dotenv path, read only if it exists.
	EnvFile string
	// Flags overrides everything else for flags the user changed.
	Flags *pflag.FlagSet
}

// RegisterFlags adds the config override flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagAddr, d.HTTP.Addr, "API listen address")
	fs.String(FlagMetricsAddr, d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String(FlagDatabaseURL, "", "PostgreSQL connection URL")
	fs.Bool(FlagAutoMigrate, d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.String(FlagLogFormat, d.Log.Format, "log format (json or text)")
	fs.String(FlagLogLevel, d.Log.Level, "log level (debug, info, warn, error)")
}

// Load builds the effective configuration. It does not call Validate.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	path, err := configPath(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
	}

	if opts.EnvFile != "" {
		vars, err := godotenv.Read(opts.EnvFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", opts.EnvFile).Wrap(err)
		default:
			if err := k.Load(confmap.Provider(envMap(vars), "."), nil); err != nil {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", opts.EnvFile).Wrap(err)
			}
		}
	}

	if err := k.Load(confmap.Provider(envMap(legacyEnviron()), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "legacy env").Wrap(err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}
	return &cfg, nil
}

func configPath(opts Options) (string, error) {
	if opts.File != "" {
		return opts.File, nil
	}
	if opts.DefaultFile == "" {
		return "", nil
	}
	if _, err := os.Stat(opts.DefaultFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", oops.Code("CONFIG_LOAD_FAILED").With("source", opts.DefaultFile).Wrap(err)
	}
	return opts.DefaultFile, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.With("source", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("source", path).Wrap(err)
	}
	return nil
}

func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"http.addr":                d.HTTP.Addr,
		"metrics_addr":             d.MetricsAddr,
		"database.url":             d.Database.URL,
		"database.connect_timeout": d.Database.ConnectTimeout.String(),
		"database.auto_migrate":    d.Database.AutoMigrate,
		"auth.secret_key":          d.Auth.SecretKey,
		"auth.token_ttl":           d.Auth.TokenTTL.String(),
		"auth.argon2.time":         d.Auth.Argon2.Time,
		"auth.argon2.memory":       d.Auth.Argon2.Memory,
		"auth.argon2.threads":      d.Auth.Argon2.Threads,
		"log.format":               d.Log.Format,
		"log.level":                d.Log.Level,
	}
}

// envKey maps LINKSTASH_AUTH__SECRET_KEY to auth.secret_key.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// legacyVars are the unprefixed variable names the service has always read.
// Empty values count as unset.
var legacyVars = []string{"DATABASE_URL", "SECRET_KEY", "PORT"}

func legacyEnviron() map[string]string {
	vars := make(map[string]string, len(legacyVars))
	for _, name := range legacyVars {
		if v := os.Getenv(name); v != "" {
			vars[name] = v
		}
	}
	return vars
}

// envMap converts a set of variables to koanf keys. Prefixed names and the
// legacy names are recognised; everything else is ignored.
func envMap(vars map[string]string) map[string]any {
	out := make(map[string]any, len(vars))
	for name, value := range vars {
		switch {
		case name == "DATABASE_URL":
			out["database.url"] = value
		case name == "SECRET_KEY":
			out["auth.secret_key"] = value
		case name == "PORT":
			if value != "" {
				out["http.addr"] = ":" + value
			}
		case strings.HasPrefix(name, EnvPrefix):
			out[envKey(name)] = value
		}
	}
	return out
}
