// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package api serves the linkstash HTTP JSON API.
//
// Protected routes accept HTTP Basic credentials in two shapes: a username
// with its password, or a session token in the username slot with any
// password. Every error leaves the server as {"success": false, "error": msg}.
package api

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/account"
	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/observability"
)

// Authenticator resolves Basic credentials to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) (*auth.User, error)
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(user *auth.User, ttl time.Duration) (string, time.Time, error)
}

// Accounts is the account and bookmark behaviour the handlers call.
type Accounts interface {
	Register(ctx context.Context, username, password string) (*auth.User, error)
	GetUser(ctx context.Context, id int64) (*auth.User, error)
	ChangeEmail(ctx context.Context, user *auth.User, email string) error
	ChangePassword(ctx context.Context, user *auth.User, password string) error
	DeleteAccount(ctx context.Context, user *auth.User) error
	CreateCategory(ctx context.Context, user *auth.User, title string) (*account.Category, error)
	ListCategories(ctx context.Context, user *auth.User) ([]*account.Category, error)
	AddLink(ctx context.Context, user *auth.User, categoryID int64, url, title string) (*account.Link, error)
}

// Config holds the API dependencies. Gate, Accounts and Tokens are required.
type Config struct {
	Gate     Authenticator
	Accounts Accounts
	Tokens   TokenIssuer
	// TokenTTL defaults to auth.DefaultTokenTTL.
	TokenTTL time.Duration
	// Logger defaults to a discard logger.
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// Server is the API HTTP server.
type Server struct {
	app      *fiber.App
	gate     Authenticator
	accounts Accounts
	tokens   TokenIssuer
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	listener net.Listener
	running  atomic.Bool
}

// New builds the API and mounts every route.
func New(cfg Config) (*Server, error) {
	if cfg.Gate == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if cfg.Accounts == nil {
		return nil, oops.Errorf("account service is required")
	}
	if cfg.Tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = auth.DefaultTokenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		gate:     cfg.Gate,
		accounts: cfg.Accounts,
		tokens:   cfg.Tokens,
		ttl:      cfg.TokenTTL,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "linkstash",
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           2 * time.Minute,
	})
	s.routes()
	return s, nil
}

// App exposes the fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on addr and serves in the background. The returned channel
// receives a serve error, or is closed when the server stops.
func (s *Server) Start(addr string) (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").With("addr", addr).Wrap(err)
	}
	s.listener = listener

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.app.Listener(listener); serveErr != nil {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_api_server").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) routes() {
	s.app.Use(s.observe)
	s.app.Use(recover.New())

	api := s.app.Group("/api")
	api.Post("/register", s.register)
	api.Get("/user/:id", s.getUser)

	api.Post("/category", s.requireAuth, s.createCategory)
	api.Get("/category", s.requireAuth, s.listCategories)
	api.Post("/link", s.requireAuth, s.addLink)
	api.Post("/email", s.requireAuth, s.changeEmail)
	api.Post("/password", s.requireAuth, s.changePassword)
	api.Post("/delete", s.requireAuth, s.deleteAccount)
	api.Delete("/delete", s.requireAuth, s.deleteAccount)
	api.Get("/token", s.requireAuth, s.issueToken)
	api.Get("/profile", s.requireAuth, s.profile)
}
