// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/account"
	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/store"
)

// CategoryRepository implements account.CategoryRepository using PostgreSQL.
type CategoryRepository struct {
	db store.Querier
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db store.Querier) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create stores a new category and assigns its ID.
func (r *CategoryRepository) Create(ctx context.Context, category *account.Category) error {
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO categories (user_id, title, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, category.UserID, category.Title, category.CreatedAt).Scan(&category.ID)
	if foreignKeyViolation(err) {
		return oops.Code("USER_NOT_FOUND").
			With("id", category.UserID).
			Wrap(&auth.NotFoundError{Entity: "user"})
	}
	if err != nil {
		return oops.Code("CATEGORY_CREATE_FAILED").
			With("operation", "insert category").
			With("user_id", category.UserID).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a category without its links.
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*account.Category, error) {
	var c account.Category
	err := store.Conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, user_id, title, created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("CATEGORY_NOT_FOUND").
			With("id", id).
			Wrap(&auth.NotFoundError{Entity: "category"})
	}
	if err != nil {
		return nil, oops.Code("CATEGORY_GET_FAILED").
			With("operation", "get category by id").
			With("id", id).
			Wrap(err)
	}
	return &c, nil
}

// ListByUser returns a user's categories with their links, oldest first.
func (r *CategoryRepository) ListByUser(ctx context.Context, userID int64) ([]*account.Category, error) {
	rows, err := store.Conn(ctx, r.db).Query(ctx, `
		SELECT c.id, c.title, c.created_at, l.id, l.url, l.title, l.created_at
		FROM categories c
		LEFT JOIN links l ON l.category_id = c.id
		WHERE c.user_id = $1
		ORDER BY c.id, l.id
	`, userID)
	if err != nil {
		return nil, oops.Code("CATEGORY_LIST_FAILED").
			With("operation", "list categories").
			With("user_id", userID).
			Wrap(err)
	}
	defer rows.Close()

	categories := make([]*account.Category, 0)
	var current *account.Category
	for rows.Next() {
		var (
			c                  account.Category
			linkID             *int64
			linkURL, linkTitle *string
			linkCreatedAt      *time.Time
		)
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &linkID, &linkURL, &linkTitle, &linkCreatedAt); err != nil {
			return nil, oops.Code("CATEGORY_LIST_FAILED").
				With("operation", "scan category row").
				Wrap(err)
		}

		if current == nil || current.ID != c.ID {
			c.UserID = userID
			c.Links = make([]*account.Link, 0)
			current = &c
			categories = append(categories, current)
		}
		if linkID != nil {
			link := &account.Link{ID: *linkID, CategoryID: current.ID}
			if linkURL != nil {
				link.URL = *linkURL
			}
			if linkTitle != nil {
				link.Title = *linkTitle
			}
			if linkCreatedAt != nil {
				link.CreatedAt = *linkCreatedAt
			}
			current.Links = append(current.Links, link)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("CATEGORY_LIST_FAILED").
			With("operation", "iterate categories").
			Wrap(err)
	}
	return categories, nil
}

// AddLink stores a new link and assigns its ID.
func (r *CategoryRepository) AddLink(ctx context.Context, link *account.Link) error {
	err := store.Conn(ctx, r.db).QueryRow(ctx, `
		INSERT INTO links (category_id, url, title, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, link.CategoryID, link.URL, link.Title, link.CreatedAt).Scan(&link.ID)
	if foreignKeyViolation(err) {
		return oops.Code("CATEGORY_NOT_FOUND").
			With("id", link.CategoryID).
			Wrap(&auth.NotFoundError{Entity: "category"})
	}
	if err != nil {
		return oops.Code("LINK_CREATE_FAILED").
			With("operation", "insert link").
			With("category_id", link.CategoryID).
			Wrap(err)
	}
	return nil
}

var _ account.CategoryRepository = (*CategoryRepository)(nil)
