// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package accounttest provides in-memory repositories and a transactor for
// tests that need account state without PostgreSQL.
package accounttest

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/account"
	"github.com/linkstash/linkstash/internal/auth"
)

// Store holds users, categories and links in memory. Transactions snapshot
// the whole store and restore it when the unit of work fails.
type Store struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]auth.User
	categories map[int64]account.Category
	links      map[int64]account.Link
	failures   map[string]error

	Commits   int
	Rollbacks int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[int64]auth.User),
		categories: make(map[int64]account.Category),
		links:      make(map[int64]account.Link),
		failures:   make(map[string]error),
	}
}

// FailOn makes the next call to op ("users.Create", "categories.AddLink", ...)
// return err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	err := s.failures[op]
	delete(s.failures, op)
	return err
}

// Users returns an auth.UserRepository backed by the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Categories returns an account.CategoryRepository backed by the store.
func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{s: s} }

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type snapshot struct {
	nextID     int64
	users      map[int64]auth.User
	categories map[int64]account.Category
	links      map[int64]account.Link
}

// InTransaction runs fn and restores the pre-call state if it fails.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snap := snapshot{
		nextID:     s.nextID,
		users:      maps.Clone(s.users),
		categories: maps.Clone(s.categories),
		links:      maps.Clone(s.links),
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.nextID, s.users, s.categories, s.links = snap.nextID, snap.users, snap.categories, snap.links
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.Commits++
	s.mu.Unlock()
	return nil
}

func notFound(code, entity string) error {
	return oops.Code(code).Wrap(&auth.NotFoundError{Entity: entity})
}

// UserRepository is the in-memory auth.UserRepository.
type UserRepository struct{ s *Store }

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("USER_NOT_FOUND", "user")
	}
	return &u, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.GetByUsername"); err != nil {
		return nil, err
	}
	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, notFound("USER_NOT_FOUND", "user")
}

// Create stores a new user and assigns its ID.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.Create"); err != nil {
		return err
	}
	if err := r.s.checkUnique(user); err != nil {
		return err
	}
	r.s.nextID++
	user.ID = r.s.nextID
	r.s.users[user.ID] = *user
	return nil
}

// UpdateEmail sets only the email address.
func (r *UserRepository) UpdateEmail(_ context.Context, id int64, email *string, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.UpdateEmail"); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return notFound("USER_NOT_FOUND", "user")
	}
	u.Email = email
	if err := r.s.checkUnique(&u); err != nil {
		return err
	}
	u.UpdatedAt = updatedAt
	r.s.users[id] = u
	return nil
}

// UpdatePassword stores digest and stamp.
func (r *UserRepository) UpdatePassword(_ context.Context, id int64, digest, stamp string, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.UpdatePassword"); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return notFound("USER_NOT_FOUND", "user")
	}
	u.PasswordHash, u.SecurityStamp, u.UpdatedAt = digest, stamp, updatedAt
	r.s.users[id] = u
	return nil
}

// ReplacePasswordHash swaps the digest only while it still equals previous.
func (r *UserRepository) ReplacePasswordHash(_ context.Context, id int64, previous, digest string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.ReplacePasswordHash"); err != nil {
		return false, err
	}
	u, ok := r.s.users[id]
	if !ok || u.PasswordHash != previous {
		return false, nil
	}
	u.PasswordHash = digest
	r.s.users[id] = u
	return true, nil
}

// Delete removes a user with its categories and links.
func (r *UserRepository) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("users.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.users[id]; !ok {
		return notFound("USER_NOT_FOUND", "user")
	}
	delete(r.s.users, id)
	for cid, c := range r.s.categories {
		if c.UserID != id {
			continue
		}
		delete(r.s.categories, cid)
		for lid, l := range r.s.links {
			if l.CategoryID == cid {
				delete(r.s.links, lid)
			}
		}
	}
	return nil
}

func (s *Store) checkUnique(user *auth.User) error {
	for _, other := range s.users {
		if other.ID == user.ID {
			continue
		}
		if strings.EqualFold(other.Username, user.Username) {
			return oops.Code("USER_CONFLICT").Wrap(&auth.ConflictError{Field: "username"})
		}
		if user.Email != nil && other.Email != nil && strings.EqualFold(*other.Email, *user.Email) {
			return oops.Code("USER_CONFLICT").Wrap(&auth.ConflictError{Field: "email"})
		}
	}
	return nil
}

// CategoryRepository is the in-memory account.CategoryRepository.
type CategoryRepository struct{ s *Store }

// Create stores a new category and assigns its ID.
func (r *CategoryRepository) Create(_ context.Context, category *account.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("categories.Create"); err != nil {
		return err
	}
	if _, ok := r.s.users[category.UserID]; !ok {
		return notFound("USER_NOT_FOUND", "user")
	}
	r.s.nextID++
	category.ID = r.s.nextID
	stored := *category
	stored.Links = nil
	r.s.categories[category.ID] = stored
	return nil
}

// GetByID retrieves a category without its links.
func (r *CategoryRepository) GetByID(_ context.Context, id int64) (*account.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("categories.GetByID"); err != nil {
		return nil, err
	}
	c, ok := r.s.categories[id]
	if !ok {
		return nil, notFound("CATEGORY_NOT_FOUND", "category")
	}
	return &c, nil
}

// ListByUser returns a user's categories with their links, oldest first.
func (r *CategoryRepository) ListByUser(_ context.Context, userID int64) ([]*account.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("categories.ListByUser"); err != nil {
		return nil, err
	}

	result := make([]*account.Category, 0)
	for _, c := range r.s.categories {
		if c.UserID != userID {
			continue
		}
		c.Links = make([]*account.Link, 0)
		for _, l := range r.s.links {
			if l.CategoryID == c.ID {
				c.Links = append(c.Links, &l)
			}
		}
		sort.Slice(c.Links, func(i, j int) bool { return c.Links[i].ID < c.Links[j].ID })
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AddLink stores a new link and assigns its ID.
func (r *CategoryRepository) AddLink(_ context.Context, link *account.Link) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("categories.AddLink"); err != nil {
		return err
	}
	if _, ok := r.s.categories[link.CategoryID]; !ok {
		return notFound("CATEGORY_NOT_FOUND", "category")
	}
	r.s.nextID++
	link.ID = r.s.nextID
	r.s.links[link.ID] = *link
	return nil
}

var (
	_ auth.UserRepository        = (*UserRepository)(nil)
	_ account.CategoryRepository = (*CategoryRepository)(nil)
	_ account.Transactor         = (*Store)(nil)
)
