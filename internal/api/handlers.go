// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"

	"github.com/linkstash/linkstash/internal/account"
	"github.com/linkstash/linkstash/internal/auth"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type titleRequest struct {
	Title string `json:"title"`
}

type linkRequest struct {
	CategoryID int64  `json:"category_id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

type emailRequest struct {
	NewEmail string `json:"new_email"`
}

type passwordRequest struct {
	NewPassword string `json:"new_password"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type usernameResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
}

type idResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

type tokenResponse struct {
	Success  bool   `json:"success"`
	Token    string `json:"token"`
	Duration int64  `json:"duration"`
}

type profileResponse struct {
	Success      bool    `json:"success"`
	Username     string  `json:"username"`
	Email        *string `json:"email"`
	PasswordHash string  `json:"password_hash"`
}

type linkView struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type categoryView struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Links     []linkView `json:"links"`
	CreatedAt time.Time  `json:"created_at"`
}

type categoriesResponse struct {
	Success    bool           `json:"success"`
	Categories []categoryView `json:"categories"`
}

// bind decodes a JSON body. An empty body decodes to the zero value.
func bind(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return oops.Code("VALIDATION_BODY").
			Wrap(&auth.InvalidInputError{Field: "body", Reason: "must be a JSON object"})
	}
	return nil
}

func (s *Server) register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := s.accounts.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}

	c.Location("/api/user/" + strconv.FormatInt(user.ID, 10))
	return c.Status(fiber.StatusCreated).JSON(usernameResponse{Success: true, Username: user.Username})
}

func (s *Server) getUser(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", c.Params("id")).
			Wrap(&auth.NotFoundError{Entity: "user"})
	}

	user, err := s.accounts.GetUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(usernameResponse{Success: true, Username: user.Username})
}

func (s *Server) createCategory(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req titleRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	category, err := s.accounts.CreateCategory(c.UserContext(), user, req.Title)
	if err != nil {
		return err
	}
	// The title is reported under "username" for compatibility with
	// existing clients.
	return c.Status(fiber.StatusCreated).JSON(usernameResponse{Success: true, Username: category.Title})
}

func (s *Server) listCategories(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	categories, err := s.accounts.ListCategories(c.UserContext(), user)
	if err != nil {
		return err
	}
	return c.JSON(categoriesResponse{Success: true, Categories: categoryViews(categories)})
}

func categoryViews(categories []*account.Category) []categoryView {
	views := make([]categoryView, 0, len(categories))
	for _, cat := range categories {
		links := make([]linkView, 0, len(cat.Links))
		for _, l := range cat.Links {
			links = append(links, linkView{ID: l.ID, URL: l.URL, Title: l.Title, CreatedAt: l.CreatedAt})
		}
		views = append(views, categoryView{ID: cat.ID, Title: cat.Title, Links: links, CreatedAt: cat.CreatedAt})
	}
	return views
}

func (s *Server) addLink(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req linkRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	link, err := s.accounts.AddLink(c.UserContext(), user, req.CategoryID, req.URL, req.Title)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(idResponse{Success: true, ID: link.ID})
}

func (s *Server) changeEmail(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req emailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := s.accounts.ChangeEmail(c.UserContext(), user, req.NewEmail); err != nil {
		return err
	}
	return c.JSON(messageResponse{Success: true, Message: "Email changed."})
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req passwordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := s.accounts.ChangePassword(c.UserContext(), user, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(messageResponse{Success: true, Message: "Password changed."})
}

func (s *Server) deleteAccount(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := s.accounts.DeleteAccount(c.UserContext(), user); err != nil {
		return err
	}
	return c.JSON(messageResponse{Success: true, Message: "User deleted."})
}

func (s *Server) issueToken(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	token, _, err := s.tokens.Issue(user, s.ttl)
	if err != nil {
		return err
	}
	return c.JSON(tokenResponse{Success: true, Token: token, Duration: int64(s.ttl / time.Second)})
}

func (s *Server) profile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(profileResponse{
		Success:      true,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	})
}
