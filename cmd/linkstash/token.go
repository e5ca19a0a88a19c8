// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package main

import (
	"context"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/logging"
	"github.com/linkstash/linkstash/internal/store/postgres"
)

// NewTokenCmd creates the token subcommand.
func NewTokenCmd() *cobra.Command {
	var (
		userID int64
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a user",
		Long: `Mint a session token for an existing user without their password.
The token embeds the user's current security stamp, so a password change
revokes it like any other token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runTokenWithDeps(cmd.Context(), cfg, cmd, userID, ttl, nil)
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user to mint the token for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	cmd.Flags().String(config.FlagDatabaseURL, "", "PostgreSQL connection URL")
	_ = cmd.MarkFlagRequired("user-id") //nolint:errcheck // flag defined above

	return cmd
}

func runTokenWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, userID int64, ttl time.Duration, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if userID <= 0 {
		return oops.Code("INVALID_USER_ID").With("user_id", userID).Errorf("--user-id must be positive")
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("database.url is required")
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	logger := logging.SetupWithLevel("linkstash", version, cfg.Log.Format, cfg.LogLevel(), cmd.ErrOrStderr())

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.Database.ConnectTimeout, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	user, err := postgres.NewUserRepository(pool).GetByID(ctx, userID)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.SecretKey), auth.WithTokenLogger(logger))
	if err != nil {
		return err
	}
	token, expires, err := tokens.Issue(user, ttl)
	if err != nil {
		return err
	}

	cmd.Println(token)
	logger.Info("token issued", "user_id", user.ID, "expires_at", expires.Format(time.RFC3339))
	return nil
}
