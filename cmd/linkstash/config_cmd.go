// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/xdg"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and scaffold configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
			}
			cmd.Print(string(out))
			return nil
		},
	}
	config.RegisterFlags(show.Flags())

	var output string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := output
			if path == "" {
				var err error
				if path, err = xdg.ConfigFile(); err != nil {
					return err
				}
			}
			return writeDefaultConfig(cmd, path, overwrite)
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", "", "destination (default: XDG_CONFIG_HOME/linkstash/config.yaml)")
	initCmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "schema",
			Short: "Print the JSON Schema for config files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				schema, err := config.GenerateSchema()
				if err != nil {
					return err
				}
				cmd.Println(string(schema))
				return nil
			},
		},
		show,
		initCmd,
	)
	return cmd
}

func writeDefaultConfig(cmd *cobra.Command, path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("%s already exists; pass --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
		}
	}

	body, err := yaml.Marshal(config.Default())
	if err != nil {
		return oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	data := append([]byte("# yaml-language-server: $schema="+config.SchemaID+"\n"), body...)

	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	cmd.Println("Wrote " + path)
	return nil
}
