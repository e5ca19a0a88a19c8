// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/auth/mocks"
	"github.com/linkstash/linkstash/pkg/errutil"
)

func slogDebugLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func userNotFound(id int64) error {
	return oops.Code("USER_NOT_FOUND").With("id", id).Wrap(&auth.NotFoundError{Entity: "user"})
}

// fakeToken has the shape of a compact JWT; the mock verifier decides it.
const fakeToken = "header.payload.signature"

type outcome struct{ method, result string }

type gateFixture struct {
	users    *mocks.MockUserRepository
	tokens   *mocks.MockTokenVerifier
	hasher   *mocks.MockPasswordHasher
	gate     *auth.Gate
	outcomes []outcome
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()
	f := &gateFixture{
		users:  mocks.NewMockUserRepository(t),
		tokens: mocks.NewMockTokenVerifier(t),
		hasher: mocks.NewMockPasswordHasher(t),
	}
	gate, err := auth.NewGate(f.users, f.tokens, f.hasher,
		auth.WithGateObserver(func(method, result string) {
			f.outcomes = append(f.outcomes, outcome{method, result})
		}),
	)
	require.NoError(t, err)
	f.gate = gate
	return f
}

func TestNewGate_NilDependencies(t *testing.T) {
	users := mocks.NewMockUserRepository(t)
	tokens := mocks.NewMockTokenVerifier(t)
	hasher := mocks.NewMockPasswordHasher(t)

	tests := []struct {
		name        string
		users       auth.UserRepository
		tokens      auth.TokenVerifier
		hasher      auth.PasswordHasher
		expectError string
	}{
		{"nil users", nil, tokens, hasher, "user repository is required"},
		{"nil tokens", users, nil, hasher, "token verifier is required"},
		{"nil hasher", users, tokens, nil, "password hasher is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, err := auth.NewGate(tt.users, tt.tokens, tt.hasher)
			assert.Nil(t, gate)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestGate_Token(t *testing.T) {
	ctx := context.Background()
	user := &auth.User{ID: 42, Username: "alice", SecurityStamp: "stamp-1", PasswordHash: "digest"}

	t.Run("valid token resolves the user and ignores the secret", func(t *testing.T) {
		f := newGateFixture(t)
		f.tokens.On("Verify", fakeToken).Return(auth.TokenClaims{UserID: 42, Stamp: "stamp-1"}, true)
		f.users.On("GetByID", ctx, int64(42)).Return(user, nil)

		got, err := f.gate.Authenticate(ctx, fakeToken, "anything")
		require.NoError(t, err)
		assert.Equal(t, user, got)
		assert.Equal(t, []outcome{{auth.MethodToken, auth.ResultSuccess}}, f.outcomes)
	})

	t.Run("deleted user is rejected without username fallthrough", func(t *testing.T) {
		f := newGateFixture(t)
		f.tokens.On("Verify", fakeToken).Return(auth.TokenClaims{UserID: 42, Stamp: "stamp-1"}, true)
		f.users.On("GetByID", ctx, int64(42)).Return(nil, userNotFound(42))

		got, err := f.gate.Authenticate(ctx, fakeToken, "")
		assert.Nil(t, got)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_REVOKED")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		f.users.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
		assert.Equal(t, []outcome{{auth.MethodToken, auth.ResultRejected}}, f.outcomes)
	})

	t.Run("rotated security stamp is rejected", func(t *testing.T) {
		f := newGateFixture(t)
		f.tokens.On("Verify", fakeToken).Return(auth.TokenClaims{UserID: 42, Stamp: "stamp-0"}, true)
		f.users.On("GetByID", ctx, int64(42)).Return(user, nil)

		got, err := f.gate.Authenticate(ctx, fakeToken, "")
		assert.Nil(t, got)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_REVOKED")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("lookup failure is not a rejection", func(t *testing.T) {
		f := newGateFixture(t)
		f.tokens.On("Verify", fakeToken).Return(auth.TokenClaims{UserID: 42, Stamp: "stamp-1"}, true)
		f.users.On("GetByID", ctx, int64(42)).Return(nil, errors.New("connection refused"))

		got, err := f.gate.Authenticate(ctx, fakeToken, "")
		assert.Nil(t, got)
		errutil.AssertErrorCode(t, err, "AUTH_LOOKUP_FAILED")
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Equal(t, []outcome{{auth.MethodToken, auth.ResultError}}, f.outcomes)
	})
}

func TestGate_Password(t *testing.T) {
	ctx := context.Background()

	t.Run("correct password authenticates", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "digest"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "secret1", "digest").Return(true)
		f.hasher.On("NeedsRehash", "digest").Return(false)

		got, err := f.gate.Authenticate(ctx, "alice", "secret1")
		require.NoError(t, err)
		assert.Equal(t, user, got)
		assert.Equal(t, []outcome{{auth.MethodPassword, auth.ResultSuccess}}, f.outcomes)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "digest"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "wrong", "digest").Return(false)

		got, err := f.gate.Authenticate(ctx, "alice", "wrong")
		assert.Nil(t, got)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Equal(t, []outcome{{auth.MethodPassword, auth.ResultRejected}}, f.outcomes)
	})

	t.Run("unknown username still runs a verification", func(t *testing.T) {
		f := newGateFixture(t)
		f.users.On("GetByUsername", ctx, "nobody").Return(nil, userNotFound(0))
		f.hasher.On("Verify", "secret1", mock.AnythingOfType("string")).Return(false).Once()

		got, err := f.gate.Authenticate(ctx, "nobody", "secret1")
		assert.Nil(t, got)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		f.hasher.AssertNumberOfCalls(t, "Verify", 1)
	})

	t.Run("lookup failure is not a rejection", func(t *testing.T) {
		f := newGateFixture(t)
		f.users.On("GetByUsername", ctx, "alice").Return(nil, errors.New("connection refused"))

		_, err := f.gate.Authenticate(ctx, "alice", "secret1")
		errutil.AssertErrorCode(t, err, "AUTH_LOOKUP_FAILED")
		assert.NotErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("empty identifier is rejected without lookups", func(t *testing.T) {
		f := newGateFixture(t)

		_, err := f.gate.Authenticate(ctx, "", "secret1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("usernames never reach the token verifier", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "digest"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "secret1", "digest").Return(true)
		f.hasher.On("NeedsRehash", "digest").Return(false)

		_, err := f.gate.Authenticate(ctx, "alice", "secret1")
		require.NoError(t, err)
		f.tokens.AssertNotCalled(t, "Verify", mock.Anything)
	})

	t.Run("dotted identifier that fails verification falls back to username", func(t *testing.T) {
		f := newGateFixture(t)
		f.tokens.On("Verify", "a.b.c").Return(auth.TokenClaims{}, false)
		f.users.On("GetByUsername", ctx, "a.b.c").Return(nil, userNotFound(0))
		f.hasher.On("Verify", "secret1", mock.AnythingOfType("string")).Return(false)

		_, err := f.gate.Authenticate(ctx, "a.b.c", "secret1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("outdated digest is upgraded on success", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "old-digest", SecurityStamp: "stamp-1"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "secret1", "old-digest").Return(true)
		f.hasher.On("NeedsRehash", "old-digest").Return(true)
		f.hasher.On("Hash", "secret1").Return("new-digest", nil)
		f.users.On("ReplacePasswordHash", ctx, int64(7), "old-digest", "new-digest").Return(true, nil)

		got, err := f.gate.Authenticate(ctx, "alice", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "new-digest", got.PasswordHash)
	})

	t.Run("password changed during login rejects it", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "old-digest", SecurityStamp: "stamp-1"}
		changed := &auth.User{ID: 7, Username: "alice", PasswordHash: "other-digest", SecurityStamp: "stamp-2"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "secret1", "old-digest").Return(true)
		f.hasher.On("NeedsRehash", "old-digest").Return(true)
		f.hasher.On("Hash", "secret1").Return("new-digest", nil)
		f.users.On("ReplacePasswordHash", ctx, int64(7), "old-digest", "new-digest").Return(false, nil)
		f.users.On("GetByID", ctx, int64(7)).Return(changed, nil)

		got, err := f.gate.Authenticate(ctx, "alice", "secret1")
		assert.Nil(t, got)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
		assert.Equal(t, []outcome{{auth.MethodPassword, auth.ResultRejected}}, f.outcomes)
	})

	t.Run("concurrent rehash of the same password keeps the login", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "old-digest", SecurityStamp: "stamp-1"}
		rehashed := &auth.User{ID: 7, Username: "alice", PasswordHash: "peer-digest", SecurityStamp: "stamp-1"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "secret1", "old-digest").Return(true)
		f.hasher.On("NeedsRehash", "old-digest").Return(true)
		f.hasher.On("Hash", "secret1").Return("new-digest", nil)
		f.users.On("ReplacePasswordHash", ctx, int64(7), "old-digest", "new-digest").Return(false, nil)
		f.users.On("GetByID", ctx, int64(7)).Return(rehashed, nil)

		got, err := f.gate.Authenticate(ctx, "alice", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "peer-digest", got.PasswordHash)
	})

	t.Run("user deleted during login is rejected", func(t *testing.T) {
		f := newGateFixture(t)
		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "old-digest", SecurityStamp: "stamp-1"}
		f.users.On("GetByUsername", ctx, "alice").Return(user, nil)
		f.hasher.On("Verify", "secret1", "old-digest").Return(true)
		f.hasher.On("NeedsRehash", "old-digest").Return(true)
		f.hasher.On("Hash", "secret1").Return("new-digest", nil)
		f.users.On("ReplacePasswordHash", ctx, int64(7), "old-digest", "new-digest").Return(false, nil)
		f.users.On("GetByID", ctx, int64(7)).Return(nil, userNotFound(7))

		_, err := f.gate.Authenticate(ctx, "alice", "secret1")
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("failed rehash store keeps the login and the old digest", func(t *testing.T) {
		var buf bytes.Buffer
		users := mocks.NewMockUserRepository(t)
		tokens := mocks.NewMockTokenVerifier(t)
		hasher := mocks.NewMockPasswordHasher(t)
		gate, err := auth.NewGate(users, tokens, hasher, auth.WithGateLogger(slogDebugLogger(&buf)))
		require.NoError(t, err)

		user := &auth.User{ID: 7, Username: "alice", PasswordHash: "old-digest"}
		users.On("GetByUsername", ctx, "alice").Return(user, nil)
		hasher.On("Verify", "secret1", "old-digest").Return(true)
		hasher.On("NeedsRehash", "old-digest").Return(true)
		hasher.On("Hash", "secret1").Return("new-digest", nil)
		users.On("ReplacePasswordHash", ctx, int64(7), "old-digest", "new-digest").Return(false, errors.New("read only"))

		got, err := gate.Authenticate(ctx, "alice", "secret1")
		require.NoError(t, err)
		assert.Equal(t, "old-digest", got.PasswordHash)
		assert.Contains(t, buf.String(), "storing rehashed password failed")
	})
}

// TestGate_EndToEnd wires the real hasher and token service together.
func TestGate_EndToEnd(t *testing.T) {
	ctx := context.Background()
	hasher := newCheapHasher(t)
	tokens := newTokenService(t, testSecret)
	users := mocks.NewMockUserRepository(t)

	gate, err := auth.NewGate(users, tokens, hasher)
	require.NoError(t, err)

	digest, err := hasher.Hash("secret1")
	require.NoError(t, err)
	user, err := auth.NewUser("alice", digest)
	require.NoError(t, err)
	user.ID = 1

	users.On("GetByUsername", ctx, "alice").Return(user, nil)
	users.On("GetByID", ctx, int64(1)).Return(user, nil)
	users.On("GetByUsername", ctx, mock.Anything).Return(nil, userNotFound(0))

	got, err := gate.Authenticate(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	_, err = gate.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	token, _, err := tokens.Issue(user, time.Minute)
	require.NoError(t, err)
	got, err = gate.Authenticate(ctx, token, "")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	newDigest, err := hasher.Hash("secret2")
	require.NoError(t, err)
	user.PasswordHash = newDigest
	user.SecurityStamp = auth.NewSecurityStamp()

	_, err = gate.Authenticate(ctx, token, "")
	errutil.AssertErrorCode(t, err, "AUTH_TOKEN_REVOKED")
}
