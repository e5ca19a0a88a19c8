// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linkstash/linkstash/internal/store"
	"github.com/linkstash/linkstash/pkg/errutil"
)

func TestConnect_InvalidURL(t *testing.T) {
	pool, err := store.Connect(context.Background(), "postgres://%zz", time.Second, nil)
	assert.Nil(t, pool)
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestConnect_GivesUpAfterTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	pool, err := store.Connect(ctx, "postgres://linkstash@127.0.0.1:1/linkstash?connect_timeout=1", 500*time.Millisecond, nil)
	assert.Nil(t, pool)
	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	assert.Less(t, time.Since(start), 5*time.Second)
}
