// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package api

import (
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linkstash/linkstash/internal/auth"
)

const tracerName = "github.com/linkstash/linkstash/internal/api"

// unmatchedRoute labels requests no route accepted, keeping raw paths out
// of metric labels.
const unmatchedRoute = "unmatched"

// observe wraps every request in a span, then logs and counts it once the
// error handler has produced the final status.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(c.UserContext(), "HTTP "+c.Method(),
		trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	c.SetUserContext(ctx)

	chainErr := c.Next()
	if chainErr != nil {
		if err := c.App().ErrorHandler(c, chainErr); err != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	route := c.Route().Path
	if isRouterMiss(chainErr) {
		route = unmatchedRoute
	}
	status := c.Response().StatusCode()
	elapsed := time.Since(start)

	span.SetName(c.Method() + " " + route)
	span.SetAttributes(
		attribute.String("http.request.method", c.Method()),
		attribute.String("http.route", route),
		attribute.Int("http.response.status_code", status),
	)
	if status >= fiber.StatusInternalServerError {
		span.SetStatus(codes.Error, "server error")
	}

	s.metrics.ObserveRequest(c.Method(), route, status, elapsed)

	attrs := []any{
		"method", c.Method(),
		"path", c.Path(),
		"route", route,
		"status", status,
		"duration", elapsed,
	}
	if user, ok := auth.UserFromContext(c.UserContext()); ok {
		attrs = append(attrs, "user_id", user.ID)
	}
	level := slog.LevelInfo
	if status >= fiber.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(c.UserContext(), level, "request", attrs...)
	return nil
}

// requireAuth resolves the Authorization header through the gate and
// attaches the user to the request context.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	identifier, secret, ok := credentials(c.Get(fiber.HeaderAuthorization))
	if !ok {
		s.metrics.RecordAuthAttempt("none", auth.ResultRejected)
		return oops.Code("AUTH_MISSING_CREDENTIALS").Wrap(auth.ErrInvalidCredentials)
	}

	user, err := s.gate.Authenticate(c.UserContext(), identifier, secret)
	if err != nil {
		return err
	}

	c.SetUserContext(auth.WithUser(c.UserContext(), user))
	return c.Next()
}

// credentials extracts identifier and secret from a Basic header. A Bearer
// header is treated as a token in the username slot.
func credentials(header string) (string, string, bool) {
	scheme, value, found := strings.Cut(header, " ")
	if !found {
		return "", "", false
	}
	value = strings.TrimSpace(value)

	switch strings.ToLower(scheme) {
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", "", false
		}
		identifier, secret, found := strings.Cut(string(raw), ":")
		if !found || identifier == "" {
			return "", "", false
		}
		return identifier, secret, true
	case "bearer":
		if value == "" {
			return "", "", false
		}
		return value, "", true
	default:
		return "", "", false
	}
}

func currentUser(c *fiber.Ctx) (*auth.User, error) {
	user, ok := auth.UserFromContext(c.UserContext())
	if !ok {
		return nil, oops.Code("AUTH_NO_USER").Errorf("handler reached without an authenticated user")
	}
	return user, nil
}
