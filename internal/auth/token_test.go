// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth_test

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/pkg/errutil"
)

var (
	testSecret  = []byte("0123456789abcdef0123456789abcdef")
	otherSecret = []byte("fedcba9876543210fedcba9876543210")
)

func testUser() *auth.User {
	return &auth.User{ID: 42, Username: "alice", SecurityStamp: "01JAAAAAAAAAAAAAAAAAAAAAAA"}
}

func newTokenService(t *testing.T, secret []byte, opts ...auth.TokenOption) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(secret, opts...)
	require.NoError(t, err)
	return svc
}

func TestNewTokenService(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		svc, err := auth.NewTokenService([]byte("too-short"))
		assert.Nil(t, svc)
		errutil.AssertErrorCode(t, err, "AUTH_WEAK_SECRET")
	})

	t.Run("accepts 32 byte secret", func(t *testing.T) {
		svc, err := auth.NewTokenService(testSecret)
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})
}

func TestTokenService_IssueVerify(t *testing.T) {
	svc := newTokenService(t, testSecret)

	t.Run("fresh token resolves to the user", func(t *testing.T) {
		user := testUser()
		token, expires, err := svc.Issue(user, auth.DefaultTokenTTL)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), expires, 2*time.Second)

		claims, ok := svc.Verify(token)
		require.True(t, ok)
		assert.Equal(t, user.ID, claims.UserID)
		assert.Equal(t, user.SecurityStamp, claims.Stamp)
	})

	t.Run("nil user is an error", func(t *testing.T) {
		_, _, err := svc.Issue(nil, time.Minute)
		errutil.AssertErrorCode(t, err, "AUTH_TOKEN_ISSUE_FAILED")
	})
}

func TestTokenService_VerifyRejects(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return now }

	var results []string
	svc := newTokenService(t, testSecret,
		auth.WithClock(clock),
		auth.WithVerifyObserver(func(result string) { results = append(results, result) }),
	)
	valid, _, err := svc.Issue(testUser(), time.Minute)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, auth.TokenClaims{
		UserID: 42,
		Stamp:  "stamp",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "linkstash",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.TokenClaims{
		UserID:           42,
		Stamp:            "stamp",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "linkstash"},
	}).SignedString(testSecret)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	forgedPayload := base64.RawURLEncoding.EncodeToString([]byte(`{"id":1,"stamp":"x","iss":"linkstash","exp":9999999999}`))
	tampered := parts[0] + "." + forgedPayload + "." + parts[2]

	tests := []struct {
		name   string
		token  func(t *testing.T) string
		result string
	}{
		{
			name: "signed with another secret",
			token: func(t *testing.T) string {
				tok, _, err := newTokenService(t, otherSecret, auth.WithClock(clock)).Issue(testUser(), time.Minute)
				require.NoError(t, err)
				return tok
			},
			result: auth.TokenBadSignature,
		},
		{
			name: "zero ttl",
			token: func(t *testing.T) string {
				tok, _, err := svc.Issue(testUser(), 0)
				require.NoError(t, err)
				return tok
			},
			result: auth.TokenExpired,
		},
		{
			name: "negative ttl",
			token: func(t *testing.T) string {
				tok, _, err := svc.Issue(testUser(), -time.Second)
				require.NoError(t, err)
				return tok
			},
			result: auth.TokenExpired,
		},
		{name: "tampered payload", token: func(*testing.T) string { return tampered }, result: auth.TokenBadSignature},
		{name: "unexpected signing method", token: func(*testing.T) string { return hs512 }, result: auth.TokenBadSignature},
		{name: "missing expiry", token: func(*testing.T) string { return noExpiry }, result: auth.TokenMalformed},
		{name: "garbage", token: func(*testing.T) string { return "not-a-token" }, result: auth.TokenMalformed},
		{name: "empty", token: func(*testing.T) string { return "" }, result: auth.TokenMalformed},
		{name: "username", token: func(*testing.T) string { return "alice" }, result: auth.TokenMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results = nil
			claims, ok := svc.Verify(tt.token(t))
			assert.False(t, ok)
			assert.Equal(t, auth.TokenClaims{}, claims)
			assert.Equal(t, []string{tt.result}, results)
		})
	}
}

func TestTokenService_ExpiresWithClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := newTokenService(t, testSecret, auth.WithClock(func() time.Time { return now }))

	token, _, err := svc.Issue(testUser(), auth.DefaultTokenTTL)
	require.NoError(t, err)

	now = now.Add(auth.DefaultTokenTTL - time.Second)
	_, ok := svc.Verify(token)
	assert.True(t, ok, "token should still be valid before its expiry")

	now = now.Add(2 * time.Second)
	_, ok = svc.Verify(token)
	assert.False(t, ok, "token should be expired after its ttl")
}

func TestTokenService_LogsRejectionReason(t *testing.T) {
	var buf bytes.Buffer
	logger := slogDebugLogger(&buf)
	svc := newTokenService(t, testSecret, auth.WithTokenLogger(logger))

	_, ok := svc.Verify("not-a-token")
	assert.False(t, ok)
	assert.Contains(t, buf.String(), `"reason":"malformed"`)
}
