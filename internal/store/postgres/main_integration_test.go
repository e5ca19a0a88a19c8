// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

//go:build integration

package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkstash/linkstash/internal/store/storetest"
)

// testPool is the shared database pool for integration tests.
var testPool *pgxpool.Pool

// TestMain sets up a migrated PostgreSQL testcontainer for integration tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	db, pool, err := storetest.Migrated(ctx)
	if err != nil {
		panic("failed to start migrated postgres: " + err.Error())
	}
	testPool = pool

	code := m.Run()

	pool.Close()
	db.Terminate(ctx)
	os.Exit(code)
}
