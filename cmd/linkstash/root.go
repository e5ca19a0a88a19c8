// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/xdg"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the linkstash CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkstash",
		Short: "linkstash - bookmarks behind an authenticated JSON API",
		Long: `linkstash stores users with their bookmark categories and links in
PostgreSQL and serves them over an HTTP JSON API secured with passwords
and signed session tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/linkstash/config.yaml if present)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read if present")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewTokenCmd())

	return cmd
}

// loadConfig resolves the effective configuration for cmd. Flags registered
// with config.RegisterFlags on cmd take part in the merge.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	opts := config.Options{
		File:    configFile,
		EnvFile: envFile,
		Flags:   cmd.Flags(),
	}
	if opts.File == "" {
		if path, err := xdg.ConfigFile(); err == nil {
			opts.DefaultFile = path
		}
	}
	return config.Load(opts)
}
