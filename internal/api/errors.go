// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/pkg/errutil"
)

// Realm is announced in WWW-Authenticate on 401 responses.
const Realm = "linkstash"

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// errorHandler maps the error taxonomy to status codes. Only 500s are
// logged; their message never leaves the process.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status, msg := classify(err)

	if status == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="`+Realm+`"`)
	}
	if status >= fiber.StatusInternalServerError {
		errutil.LogErrorContext(c.UserContext(), s.logger, "request failed", err)
	}

	return c.Status(status).JSON(errorResponse{Success: false, Error: msg})
}

func classify(err error) (int, string) {
	var (
		invalid  *auth.InvalidInputError
		conflict *auth.ConflictError
		missing  *auth.NotFoundError
		fiberErr *fiber.Error
	)
	switch {
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest, invalid.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "unauthorized access"
	case errors.As(err, &conflict):
		return fiber.StatusForbidden, "A user with that " + conflict.Field + " already exists."
	case errors.As(err, &missing):
		return fiber.StatusNotFound, missing.Error()
	case errors.As(err, &fiberErr):
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return fiberErr.Code, "not found"
		case fiber.StatusMethodNotAllowed:
			return fiberErr.Code, "method not allowed"
		}
		if fiberErr.Code >= fiber.StatusInternalServerError {
			return fiberErr.Code, "internal server error"
		}
		return fiberErr.Code, fiberErr.Message
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

// isRouterMiss reports whether err came from the router rather than a handler.
func isRouterMiss(err error) bool {
	var fiberErr *fiber.Error
	if !errors.As(err, &fiberErr) {
		return false
	}
	return fiberErr.Code == fiber.StatusNotFound || fiberErr.Code == fiber.StatusMethodNotAllowed
}
