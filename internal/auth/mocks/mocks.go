// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package mocks provides testify mocks for the auth package interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/linkstash/linkstash/internal/auth"
)

// testingT is the subset of *testing.T the constructors need.
type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockUserRepository is a mock of auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t testingT) *MockUserRepository {
	m := &MockUserRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func userOrNil(v any) *auth.User {
	if v == nil {
		return nil
	}
	return v.(*auth.User)
}

// GetByID provides a mock function.
func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	ret := m.Called(ctx, id)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

// GetByUsername provides a mock function.
func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	ret := m.Called(ctx, username)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

// Create provides a mock function.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

// UpdateEmail provides a mock function.
func (m *MockUserRepository) UpdateEmail(ctx context.Context, id int64, email *string, updatedAt time.Time) error {
	return m.Called(ctx, id, email, updatedAt).Error(0)
}

// UpdatePassword provides a mock function.
func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, digest, stamp string, updatedAt time.Time) error {
	return m.Called(ctx, id, digest, stamp, updatedAt).Error(0)
}

// ReplacePasswordHash provides a mock function.
func (m *MockUserRepository) ReplacePasswordHash(ctx context.Context, id int64, previous, digest string) (bool, error) {
	ret := m.Called(ctx, id, previous, digest)
	return ret.Bool(0), ret.Error(1)
}

// Delete provides a mock function.
func (m *MockUserRepository) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

// MockPasswordHasher is a mock of auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t testingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash provides a mock function.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

// Verify provides a mock function.
func (m *MockPasswordHasher) Verify(password, digest string) bool {
	return m.Called(password, digest).Bool(0)
}

// NeedsRehash provides a mock function.
func (m *MockPasswordHasher) NeedsRehash(digest string) bool {
	return m.Called(digest).Bool(0)
}

// MockTokenVerifier is a mock of auth.TokenVerifier.
type MockTokenVerifier struct {
	mock.Mock
}

// NewMockTokenVerifier creates a mock that asserts its expectations on cleanup.
func NewMockTokenVerifier(t testingT) *MockTokenVerifier {
	m := &MockTokenVerifier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Verify provides a mock function.
func (m *MockTokenVerifier) Verify(token string) (auth.TokenClaims, bool) {
	ret := m.Called(token)
	claims, _ := ret.Get(0).(auth.TokenClaims)
	return claims, ret.Bool(1)
}

var (
	_ auth.UserRepository = (*MockUserRepository)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.TokenVerifier  = (*MockTokenVerifier)(nil)
)
