// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write collides with a unique field
	// already held by another user.
	ErrConflict = errors.New("conflict")

	// ErrInvalidCredentials is returned when credentials cannot be matched to a
	// user. The gate never says which part of the credentials was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput is returned when caller-supplied data fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError names the kind of entity that was missing.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string { return e.Entity + " not found" }

// Is reports ErrNotFound so callers can match on the sentinel.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError names the unique field that collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string { return e.Field + " already exists" }

// Is reports ErrConflict so callers can match on the sentinel.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidInputError carries a human readable reason for a rejected field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Field + ": " + e.Reason }

// Is reports ErrInvalidInput so callers can match on the sentinel.
func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }
