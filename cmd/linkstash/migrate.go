// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/store"
)

// MigrationRunner is the part of store.Migrator the migrate commands use.
type MigrationRunner interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (*store.MigrationStatus, error)
	Close() error
}

// newMigrationRunner is replaced in tests.
var newMigrationRunner = func(url string) (MigrationRunner, error) {
	return store.NewMigrator(url)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, revert or inspect the embedded PostgreSQL schema migrations.`,
	}
	cmd.PersistentFlags().String(config.FlagDatabaseURL, "", "PostgreSQL connection URL")

	var assumeYes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert every migration, dropping all data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !assumeYes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops every table; pass --yes to proceed")
			}
			return withMigrator(cmd, func(m MigrationRunner) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations reverted")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&assumeYes, "yes", false, "confirm dropping all data")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m MigrationRunner) error {
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations (negative N reverts)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return oops.Code("INVALID_STEPS").With("input", args[0]).Errorf("steps must be a non-zero integer")
				}
				return withMigrator(cmd, func(m MigrationRunner) error {
					return m.Steps(n)
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m MigrationRunner) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					if dirty {
						cmd.Printf("%d (dirty)\n", v)
						return nil
					}
					cmd.Println(v)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m MigrationRunner) error {
					status, err := m.Status()
					if err != nil {
						return err
					}
					printStatus(cmd, status)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Mark VERSION as applied without running it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(cmd, func(m MigrationRunner) error {
					if err := m.Force(v); err != nil {
						return err
					}
					cmd.Printf("Forced version %d\n", v)
					return nil
				})
			},
		},
	)
	return cmd
}

func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	return v, nil
}

func printStatus(cmd *cobra.Command, status *store.MigrationStatus) {
	switch {
	case status.Version == 0:
		cmd.Println("Version: none")
	case status.Dirty:
		cmd.Printf("Version: %d %s (dirty)\n", status.Version, status.Name)
	default:
		cmd.Printf("Version: %d %s\n", status.Version, status.Name)
	}
	if len(status.Pending) == 0 {
		cmd.Println("Pending: none")
		return
	}
	cmd.Println("Pending: " + fmt.Sprint(status.Pending))
}

func withMigrator(cmd *cobra.Command, fn func(MigrationRunner) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required")
	}

	m, err := newMigrationRunner(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("closing migrator:", closeErr)
		}
	}()
	return fn(m)
}
