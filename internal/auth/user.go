// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User is a registered account.
type User struct {
	ID            int64
	Username      string
	Email         *string
	PasswordHash  string
	SecurityStamp string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser creates a User with a validated username, the given digest and a
// fresh security stamp. The ID is assigned by the repository on Create.
func NewUser(username, passwordHash string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if strings.TrimSpace(passwordHash) == "" {
		return nil, oops.Code("AUTH_INVALID_PASSWORD").Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		Username:      username,
		PasswordHash:  passwordHash,
		SecurityStamp: NewSecurityStamp(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// NewSecurityStamp returns a new opaque stamp value.
func NewSecurityStamp() string {
	return ulid.Make().String()
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return invalidUsername("cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Wrap(&InvalidInputError{
				Field:  "username",
				Reason: fmt.Sprintf("must be at least %d characters", MinUsernameLength),
			})
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Wrap(&InvalidInputError{
				Field:  "username",
				Reason: fmt.Sprintf("must be at most %d characters", MaxUsernameLength),
			})
	}
	if !usernameRegex.MatchString(username) {
		return invalidUsername("must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

func invalidUsername(reason string) error {
	return oops.Code("AUTH_INVALID_USERNAME").Wrap(&InvalidInputError{Field: "username", Reason: reason})
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Create stores a new user and assigns its ID.
	Create(ctx context.Context, user *User) error

	// UpdateEmail sets only the email address. Nil clears it.
	UpdateEmail(ctx context.Context, id int64, email *string, updatedAt time.Time) error

	// UpdatePassword stores a new digest together with a new security stamp.
	UpdatePassword(ctx context.Context, id int64, digest, stamp string, updatedAt time.Time) error

	// ReplacePasswordHash swaps the digest only while the stored one still
	// equals previous, and reports whether it did. The stamp is kept.
	ReplacePasswordHash(ctx context.Context, id int64, previous, digest string) (bool, error)

	// Delete removes a user and everything it owns.
	Delete(ctx context.Context, id int64) error
}
