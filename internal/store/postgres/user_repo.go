// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/store"
)

const userColumns = `id, username, email, password_hash, security_stamp, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	db store.Querier
}

// NewUserRepository creates a new UserRepository. Queries run on the
// transaction in the context when there is one and on db otherwise.
func NewUserRepository(db store.Querier) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(&auth.NotFoundError{Entity: "user"})
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(&auth.NotFoundError{Entity: "user"})
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, security_stamp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.SecurityStamp,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if field, ok := uniqueViolation(err); ok {
		return oops.Code("USER_CONFLICT").
			With("username", user.Username).
			Wrap(&auth.ConflictError{Field: field})
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// UpdateEmail sets the email address of user id. Nil clears it.
func (r *UserRepository) UpdateEmail(ctx context.Context, id int64, email *string, updatedAt time.Time) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx,
		`UPDATE users SET email = $2, updated_at = $3 WHERE id = $1`,
		id, email, updatedAt)
	if field, ok := uniqueViolation(err); ok {
		return oops.Code("USER_CONFLICT").
			With("id", id).
			Wrap(&auth.ConflictError{Field: field})
	}
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update email").
			With("id", id).
			Wrap(err)
	}
	return requireRow(result.RowsAffected(), id)
}

// UpdatePassword stores digest and stamp for user id.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, digest, stamp string, updatedAt time.Time) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx,
		`UPDATE users SET password_hash = $2, security_stamp = $3, updated_at = $4 WHERE id = $1`,
		id, digest, stamp, updatedAt)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update password").
			With("id", id).
			Wrap(err)
	}
	return requireRow(result.RowsAffected(), id)
}

// ReplacePasswordHash swaps previous for digest. It reports false when the
// stored digest has changed since previous was read, or the user is gone.
func (r *UserRepository) ReplacePasswordHash(ctx context.Context, id int64, previous, digest string) (bool, error) {
	result, err := store.Conn(ctx, r.db).Exec(ctx,
		`UPDATE users SET password_hash = $3 WHERE id = $1 AND password_hash = $2`,
		id, previous, digest)
	if err != nil {
		return false, oops.Code("USER_UPDATE_FAILED").
			With("operation", "replace password hash").
			With("id", id).
			Wrap(err)
	}
	return result.RowsAffected() == 1, nil
}

func requireRow(affected, id int64) error {
	if affected == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(&auth.NotFoundError{Entity: "user"})
	}
	return nil
}

// Delete removes a user. Categories and links cascade.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := store.Conn(ctx, r.db).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(&auth.NotFoundError{Entity: "user"})
	}
	return nil
}

func scanUser(row pgx.Row) (*auth.User, error) {
	var u auth.User
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.SecurityStamp,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

var _ auth.UserRepository = (*UserRepository)(nil)
