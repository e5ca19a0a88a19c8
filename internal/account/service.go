// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/auth"
)

// Service coordinates account and bookmark writes. Every write runs in a
// transaction, so a failed step leaves no partial state behind.
type Service struct {
	users      auth.UserRepository
	categories CategoryRepository
	hasher     auth.PasswordHasher
	tx         Transactor
	logger     *slog.Logger
}

// NewService creates a Service that logs nowhere.
func NewService(users auth.UserRepository, categories CategoryRepository, hasher auth.PasswordHasher, tx Transactor) (*Service, error) {
	return NewServiceWithLogger(users, categories, hasher, tx, slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates a Service. All dependencies are required.
func NewServiceWithLogger(
	users auth.UserRepository,
	categories CategoryRepository,
	hasher auth.PasswordHasher,
	tx Transactor,
	logger *slog.Logger,
) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if categories == nil {
		return nil, oops.Errorf("category repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tx == nil {
		return nil, oops.Errorf("transactor is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{users: users, categories: categories, hasher: hasher, tx: tx, logger: logger}, nil
}

// Register creates a user with a freshly hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*auth.User, error) {
	username = strings.TrimSpace(username)
	if err := auth.ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, invalid("VALIDATION_PASSWORD", "password", "is required")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_HASH_FAILED").Wrap(err)
	}
	user, err := auth.NewUser(username, digest)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.users.GetByUsername(ctx, username); err == nil {
			return oops.Code("USER_CONFLICT").
				With("username", username).
				Wrap(&auth.ConflictError{Field: "username"})
		} else if !errors.Is(err, auth.ErrNotFound) {
			return err
		}
		return s.users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	return s.users.GetByID(ctx, id)
}

// ChangeEmail sets the user's email address. An empty address clears it.
func (s *Service) ChangeEmail(ctx context.Context, user *auth.User, email string) error {
	email = strings.TrimSpace(email)
	var next *string
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return invalid("VALIDATION_EMAIL", "new_email", "is not a valid email address")
		}
		next = &email
	}

	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.UpdateEmail(ctx, user.ID, next, time.Now().UTC()); err != nil {
			return err
		}
		return s.reload(ctx, user)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "email changed", "user_id", user.ID, "cleared", next == nil)
	return nil
}

// ChangePassword stores a new digest and rotates the security stamp, which
// revokes every token issued before the change.
func (s *Service) ChangePassword(ctx context.Context, user *auth.User, password string) error {
	if password == "" {
		return invalid("VALIDATION_PASSWORD", "new_password", "is required")
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return oops.Code("ACCOUNT_HASH_FAILED").Wrap(err)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, user.ID, digest, auth.NewSecurityStamp(), time.Now().UTC()); err != nil {
			return err
		}
		return s.reload(ctx, user)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

// reload copies the stored row over user once the write has succeeded.
func (s *Service) reload(ctx context.Context, user *auth.User) error {
	current, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *current
	return nil
}

// DeleteAccount removes the user with all categories and links.
func (s *Service) DeleteAccount(ctx context.Context, user *auth.User) error {
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		return s.users.Delete(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user deleted", "user_id", user.ID)
	return nil
}

// CreateCategory adds a category owned by user.
func (s *Service) CreateCategory(ctx context.Context, user *auth.User, title string) (*Category, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("VALIDATION_TITLE", "title", "is required")
	}
	if utf8.RuneCountInString(title) > MaxCategoryTitleLength {
		return nil, oops.Code("VALIDATION_TITLE").
			With("max", MaxCategoryTitleLength).
			Wrap(&auth.InvalidInputError{Field: "title", Reason: "must be at most 80 characters"})
	}

	category := &Category{UserID: user.ID, Title: title, Links: []*Link{}, CreatedAt: time.Now().UTC()}
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		return s.categories.Create(ctx, category)
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// ListCategories returns the user's categories with their links.
func (s *Service) ListCategories(ctx context.Context, user *auth.User) ([]*Category, error) {
	return s.categories.ListByUser(ctx, user.ID)
}

// AddLink bookmarks rawURL in one of the user's categories. Categories of
// other users are reported as missing.
func (s *Service) AddLink(ctx context.Context, user *auth.User, categoryID int64, rawURL, title string) (*Link, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > MaxLinkTitleLength {
		return nil, invalid("VALIDATION_TITLE", "title", "must be at most 200 characters")
	}

	link := &Link{CategoryID: categoryID, URL: rawURL, Title: title, CreatedAt: time.Now().UTC()}
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		category, err := s.categories.GetByID(ctx, categoryID)
		if err != nil {
			return err
		}
		if category.UserID != user.ID {
			return oops.Code("CATEGORY_NOT_FOUND").
				With("id", categoryID).
				With("user_id", user.ID).
				Wrap(&auth.NotFoundError{Entity: "category"})
		}
		return s.categories.AddLink(ctx, link)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return invalid("VALIDATION_URL", "url", "is required")
	}
	if len(raw) > MaxURLLength {
		return invalid("VALIDATION_URL", "url", "is too long")
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("VALIDATION_URL", "url", "must be an absolute http or https URL")
	}
	return nil
}

func invalid(code, field, reason string) error {
	return oops.Code(code).Wrap(&auth.InvalidInputError{Field: field, Reason: reason})
}
