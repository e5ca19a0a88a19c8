// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/linkstash/linkstash/internal/account"
	"github.com/linkstash/linkstash/internal/api"
	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/config"
	"github.com/linkstash/linkstash/internal/logging"
	"github.com/linkstash/linkstash/internal/observability"
	"github.com/linkstash/linkstash/internal/store"
	"github.com/linkstash/linkstash/internal/store/postgres"
)

// shutdownTimeout bounds the graceful drain of both servers.
const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API and observability servers",
		Long: `Run the HTTP JSON API. Metrics and health probes are served on a
separate listener unless metrics_addr is empty.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServeWithDeps(ctx, cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs until ctx is cancelled or a server fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.SetupWithLevel("linkstash", version, cfg.Log.Format, cfg.LogLevel(), cmd.ErrOrStderr())
	logging.SetDefault(logger)

	logger.Info("starting linkstash", "addr", cfg.HTTP.Addr, "metrics_addr", cfg.MetricsAddr)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	pool, err := deps.PoolFactory(ctx, cfg.Database.URL, cfg.Database.ConnectTimeout, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, func() bool {
			if !ready.Load() {
				return false
			}
			pingCtx, pingCancel := context.WithTimeout(context.Background(), time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		metrics = obsServer.Metrics()
	}

	apiCfg, err := buildAPIConfig(cfg, pool, logger, metrics)
	if err != nil {
		stopServers(logger, nil, obsServer)
		return err
	}
	apiServer, err := deps.APIServerFactory(apiCfg)
	if err != nil {
		stopServers(logger, nil, obsServer)
		return oops.Code("API_INIT_FAILED").Wrap(err)
	}
	apiErrCh, err := apiServer.Start(cfg.HTTP.Addr)
	if err != nil {
		stopServers(logger, nil, obsServer)
		return err
	}
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)
	ready.Store(true)

	cmd.Println("linkstash listening on " + apiServer.Addr())
	logger.Info("linkstash ready", "addr", apiServer.Addr())

	<-ctx.Done()
	logger.Info("shutting down")
	stopServers(logger, apiServer, obsServer)
	logger.Info("shutdown complete")
	return nil
}

// buildAPIConfig wires the auth and account layers over pool.
func buildAPIConfig(cfg *config.Config, pool Pool, logger *slog.Logger, metrics *observability.Metrics) (api.Config, error) {
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return api.Config{}, err
	}
	tokens, err := auth.NewTokenService([]byte(cfg.Auth.SecretKey),
		auth.WithTokenLogger(logger),
		auth.WithVerifyObserver(metrics.RecordTokenVerification))
	if err != nil {
		return api.Config{}, err
	}

	users := postgres.NewUserRepository(pool)
	categories := postgres.NewCategoryRepository(pool)
	tx := store.NewTransactor(pool)

	gate, err := auth.NewGate(users, tokens, hasher,
		auth.WithGateLogger(logger),
		auth.WithGateObserver(metrics.RecordAuthAttempt))
	if err != nil {
		return api.Config{}, err
	}
	accounts, err := account.NewServiceWithLogger(users, categories, hasher, tx, logger)
	if err != nil {
		return api.Config{}, err
	}

	return api.Config{
		Gate:     gate,
		Accounts: accounts,
		Tokens:   tokens,
		TokenTTL: cfg.Auth.TokenTTL,
		Logger:   logger,
		Metrics:  metrics,
	}, nil
}

func autoMigrate(deps *ServeDeps, url string, logger *slog.Logger) error {
	migrator, err := deps.MigratorFactory(url)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("closing migrator failed", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	logger.Info("database migrations applied")
	return nil
}

// stopServers drains whichever servers are running within shutdownTimeout.
func stopServers(logger *slog.Logger, apiServer APIServer, obsServer ObservabilityServer) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping api server", "error", err)
		}
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports a failure. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
