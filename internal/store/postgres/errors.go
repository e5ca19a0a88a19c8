// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package postgres implements the auth and account repositories on pgx.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation reports the field behind a unique-constraint failure.
func uniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	case strings.Contains(pgErr.ConstraintName, "username"):
		return "username", true
	default:
		return pgErr.ConstraintName, true
	}
}

// foreignKeyViolation reports whether err is a foreign-key failure.
func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
