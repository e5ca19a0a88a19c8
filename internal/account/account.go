// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package account implements the account and bookmark operations exposed
// by the HTTP API: registration, profile changes, account deletion,
// categories and links.
package account

import (
	"context"
	"time"

	"github.com/linkstash/linkstash/internal/auth"
)

// Field limits.
const (
	MaxCategoryTitleLength = 80
	MaxLinkTitleLength     = 200
	MaxURLLength           = 2048
)

// ErrValidation matches every rejected-input error returned by the service.
var ErrValidation = auth.ErrInvalidInput

// Category groups a user's links.
type Category struct {
	ID        int64
	UserID    int64
	Title     string
	Links     []*Link
	CreatedAt time.Time
}

// Link is a bookmarked URL inside a category.
type Link struct {
	ID         int64
	CategoryID int64
	URL        string
	Title      string
	CreatedAt  time.Time
}

// CategoryRepository manages category and link persistence.
type CategoryRepository interface {
	// Create stores a new category and assigns its ID.
	Create(ctx context.Context, category *Category) error

	// GetByID retrieves a category without its links.
	GetByID(ctx context.Context, id int64) (*Category, error)

	// ListByUser returns a user's categories with their links, oldest first.
	ListByUser(ctx context.Context, userID int64) ([]*Category, error)

	// AddLink stores a new link and assigns its ID.
	AddLink(ctx context.Context, link *Link) error
}

// Transactor runs fn inside a single transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
