// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// Transactor runs units of work inside a single database transaction.
type Transactor struct {
	db Beginner
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db Beginner) *Transactor {
	return &Transactor{db: db}
}

// InTransaction begins a transaction, stores it in ctx and calls fn. The
// transaction commits when fn returns nil and rolls back otherwise,
// including when fn panics. Nested calls join the outer transaction.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	// Covers a panicking fn; after commit or rollback this returns ErrTxClosed.
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return oops.Code("TX_ROLLBACK_FAILED").With("rollback_error", rbErr.Error()).Wrap(err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}
