// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Token defaults.
const (
	DefaultTokenTTL    = 600 * time.Second
	MinSecretKeyLength = 32

	tokenIssuer = "linkstash"
)

// Token verification outcomes, as reported to VerifyObserver.
const (
	TokenValid        = "valid"
	TokenMalformed    = "malformed"
	TokenBadSignature = "bad_signature"
	TokenExpired      = "expired"
)

// TokenClaims is the signed payload of an auth token.
type TokenClaims struct {
	UserID int64  `json:"id"`
	Stamp  string `json:"stamp"`
	jwt.RegisteredClaims
}

// TokenVerifier resolves a bearer token to its claims.
type TokenVerifier interface {
	Verify(token string) (TokenClaims, bool)
}

// VerifyObserver receives the outcome of every Verify call.
type VerifyObserver func(result string)

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// WithTokenLogger sets the logger used for rejected tokens.
func WithTokenLogger(logger *slog.Logger) TokenOption {
	return func(s *TokenService) {
		s.logger = logger
	}
}

// WithVerifyObserver registers a callback for verification outcomes.
func WithVerifyObserver(observe VerifyObserver) TokenOption {
	return func(s *TokenService) {
		s.observe = observe
	}
}

// TokenService issues and verifies HS256 signed tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret  []byte
	now     func() time.Time
	logger  *slog.Logger
	observe VerifyObserver
	parser  *jwt.Parser
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret []byte, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretKeyLength {
		return nil, oops.Code("AUTH_WEAK_SECRET").
			With("min_length", MinSecretKeyLength).
			Errorf("secret key must be at least %d bytes", MinSecretKeyLength)
	}

	s := &TokenService{
		secret:  append([]byte(nil), secret...),
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
		observe: func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(tokenIssuer),
	)
	return s, nil
}

// Issue signs a token for user that expires ttl from now. A ttl <= 0
// yields a token that is already expired.
func (s *TokenService) Issue(user *User, ttl time.Duration) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").Errorf("user is required")
	}

	now := s.now()
	expires := now.Add(ttl)
	claims := TokenClaims{
		UserID: user.ID,
		Stamp:  user.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return token, expires, nil
}

// Verify checks the signature, the signing method and the expiry. The
// reason for a rejection is logged and observed but never returned.
func (s *TokenService) Verify(token string) (TokenClaims, bool) {
	var claims TokenClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err == nil && (claims.UserID <= 0 || claims.Stamp == "") {
		err = jwt.ErrTokenInvalidClaims
	}

	result := classifyTokenError(err)
	s.observe(result)
	if result != TokenValid {
		s.logger.Debug("token rejected", "reason", result, "error", err)
		return TokenClaims{}, false
	}
	return claims, true
}

func classifyTokenError(err error) string {
	switch {
	case err == nil:
		return TokenValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return TokenBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return TokenExpired
	default:
		return TokenMalformed
	}
}

var _ TokenVerifier = (*TokenService)(nil)
