// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Authentication methods and results, as reported to GateObserver.
const (
	MethodToken    = "token"
	MethodPassword = "password"

	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// dummyPasswordHash is verified when a username does not exist so that the
// response time does not reveal which usernames are registered. It never
// matches any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// errPasswordChanged reports that the credentials were replaced while a
// login was verifying them.
var errPasswordChanged = errors.New("password changed during login")

// GateObserver receives the method and result of every Authenticate call.
type GateObserver func(method, result string)

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the gate's logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateObserver registers a callback for authentication outcomes.
func WithGateObserver(observe GateObserver) GateOption {
	return func(g *Gate) {
		g.observe = observe
	}
}

// Gate resolves the credential pair of a request to a user. The identifier
// is tried as a token first and as a username second.
type Gate struct {
	users   UserRepository
	tokens  TokenVerifier
	hasher  PasswordHasher
	logger  *slog.Logger
	observe GateObserver
	dummy   string
}

// NewGate creates a Gate. All collaborators are required.
func NewGate(users UserRepository, tokens TokenVerifier, hasher PasswordHasher, opts ...GateOption) (*Gate, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}

	g := &Gate{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		logger:  slog.New(slog.DiscardHandler),
		observe: func(string, string) {},
		dummy:   dummyDigestFor(hasher),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// dummyDigestFor builds a never-matching digest with the hasher's own cost
// so the unknown-user path costs the same as a real verification.
func dummyDigestFor(hasher PasswordHasher) string {
	p, ok := hasher.(interface{ Params() Argon2Params })
	if !ok {
		return dummyPasswordHash
	}
	d := &Digest{
		Version: argon2.Version,
		Params:  p.Params(),
		Salt:    make([]byte, argon2SaltLen),
		Key:     make([]byte, argon2KeyLen),
	}
	return d.String()
}

// Authenticate returns the user identified by the credential pair. Rejected
// credentials yield an error matching ErrInvalidCredentials. Any other error
// is a persistence failure.
func (g *Gate) Authenticate(ctx context.Context, identifier, secret string) (*User, error) {
	if identifier == "" {
		g.observe(MethodPassword, ResultRejected)
		return nil, invalidCredentials()
	}

	if couldBeToken(identifier) {
		if claims, ok := g.tokens.Verify(identifier); ok {
			return g.authenticateToken(ctx, claims)
		}
	}
	return g.authenticatePassword(ctx, identifier, secret)
}

// couldBeToken reports whether identifier has the three segments of a
// compact JWT. Usernames never contain dots.
func couldBeToken(identifier string) bool {
	return strings.Count(identifier, ".") == 2
}

func (g *Gate) authenticateToken(ctx context.Context, claims TokenClaims) (*User, error) {
	user, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			g.reject(ctx, MethodToken, "user deleted", claims.UserID)
			return nil, tokenRevoked(claims.UserID)
		}
		g.observe(MethodToken, ResultError)
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("user_id", claims.UserID).
			Wrap(err)
	}

	if subtle.ConstantTimeCompare([]byte(user.SecurityStamp), []byte(claims.Stamp)) != 1 {
		g.reject(ctx, MethodToken, "security stamp changed", claims.UserID)
		return nil, tokenRevoked(claims.UserID)
	}

	g.observe(MethodToken, ResultSuccess)
	return user, nil
}

func (g *Gate) authenticatePassword(ctx context.Context, username, password string) (*User, error) {
	user, err := g.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.observe(MethodPassword, ResultError)
			return nil, oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get user by username").
				Wrap(err)
		}
		// Still pay for a verification so unknown usernames cost the same.
		g.hasher.Verify(password, g.dummy)
		g.reject(ctx, MethodPassword, "unknown username", 0)
		return nil, invalidCredentials()
	}

	if !g.hasher.Verify(password, user.PasswordHash) {
		g.reject(ctx, MethodPassword, "wrong password", user.ID)
		return nil, invalidCredentials()
	}

	if g.hasher.NeedsRehash(user.PasswordHash) {
		current, err := g.rehash(ctx, user, password)
		if errors.Is(err, errPasswordChanged) {
			g.reject(ctx, MethodPassword, "password changed during login", user.ID)
			return nil, invalidCredentials()
		}
		if err != nil {
			g.observe(MethodPassword, ResultError)
			return nil, err
		}
		user = current
	}

	g.observe(MethodPassword, ResultSuccess)
	return user, nil
}

// rehash upgrades the stored digest to the current cost. The new digest
// only replaces the one read at login. If that one is gone the row is read
// again, and a rotated stamp means the password changed meanwhile, which
// yields errPasswordChanged. Failing to store the digest is logged and
// keeps the login.
func (g *Gate) rehash(ctx context.Context, user *User, password string) (*User, error) {
	digest, err := g.hasher.Hash(password)
	if err != nil {
		g.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return user, nil
	}

	swapped, err := g.users.ReplacePasswordHash(ctx, user.ID, user.PasswordHash, digest)
	if err != nil {
		g.logger.WarnContext(ctx, "storing rehashed password failed", "user_id", user.ID, "error", err)
		return user, nil
	}
	if swapped {
		user.PasswordHash = digest
		return user, nil
	}

	current, err := g.users.GetByID(ctx, user.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, errPasswordChanged
	}
	if err != nil {
		return nil, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "get user by id").
			With("user_id", user.ID).
			Wrap(err)
	}
	if subtle.ConstantTimeCompare([]byte(current.SecurityStamp), []byte(user.SecurityStamp)) != 1 {
		return nil, errPasswordChanged
	}
	return current, nil
}

func (g *Gate) reject(ctx context.Context, method, reason string, userID int64) {
	g.observe(method, ResultRejected)
	g.logger.DebugContext(ctx, "authentication rejected",
		"method", method,
		"reason", reason,
		"user_id", userID,
	)
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func tokenRevoked(userID int64) error {
	return oops.Code("AUTH_TOKEN_REVOKED").With("user_id", userID).Wrap(ErrInvalidCredentials)
}
