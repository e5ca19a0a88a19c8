// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/linkstash/linkstash/internal/api"
	"github.com/linkstash/linkstash/internal/observability"
	"github.com/linkstash/linkstash/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolFactory opens the database pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (Pool, error)

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (AutoMigrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: api.New
	APIServerFactory func(cfg api.Config) (APIServer, error)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (Pool, error) {
			return store.Connect(ctx, url, timeout, logger)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (AutoMigrator, error) {
			return store.NewMigrator(url)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(cfg api.Config) (APIServer, error) {
			return api.New(cfg)
		}
	}
	return &out
}

// Pool is the database handle serve needs: queries, transactions, health.
type Pool interface {
	store.Beginner
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator applies pending migrations at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// APIServer interface wraps the methods used from api.Server.
type APIServer interface {
	Start(addr string) (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
