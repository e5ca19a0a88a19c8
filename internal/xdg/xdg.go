// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package xdg provides XDG Base Directory paths for linkstash.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "linkstash"

// ConfigDir returns the XDG config directory for linkstash.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

func dir(envVar, fallback string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").With("env", envVar).Wrap(err)
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, appName), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
