// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package storetest starts throwaway PostgreSQL instances for integration tests.
package storetest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/linkstash/linkstash/internal/store"
)

// Database is a running container and its connection string.
type Database struct {
	URL       string
	container *postgres.PostgresContainer
}

// StartPostgres starts an empty PostgreSQL 16 container.
func StartPostgres(ctx context.Context) (*Database, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("linkstash_test"),
		postgres.WithUsername("linkstash"),
		postgres.WithPassword("linkstash"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, oops.Code("TEST_CONTAINER_FAILED").Wrap(err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, oops.Code("TEST_CONTAINER_FAILED").Wrap(err)
	}
	return &Database{URL: url, container: container}, nil
}

// Migrated starts a container, applies every migration and returns a pool.
func Migrated(ctx context.Context) (*Database, *pgxpool.Pool, error) {
	db, err := StartPostgres(ctx)
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(db.URL)
	if err != nil {
		db.Terminate(ctx)
		return nil, nil, err
	}
	defer migrator.Close() //nolint:errcheck // test helper
	if err := migrator.Up(); err != nil {
		db.Terminate(ctx)
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, db.URL, 10*time.Second, nil)
	if err != nil {
		db.Terminate(ctx)
		return nil, nil, err
	}
	return db, pool, nil
}

// Terminate stops the container. Errors are ignored.
func (d *Database) Terminate(ctx context.Context) {
	_ = d.container.Terminate(ctx)
}
