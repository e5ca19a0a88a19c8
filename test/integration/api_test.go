// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/linkstash/linkstash/internal/account"
	"github.com/linkstash/linkstash/internal/api"
	"github.com/linkstash/linkstash/internal/auth"
	"github.com/linkstash/linkstash/internal/store"
	"github.com/linkstash/linkstash/internal/store/postgres"
	"github.com/linkstash/linkstash/internal/store/storetest"
)

const secret = "integration-secret-0123456789abcdef"

// testEnv holds the database and a listening API server.
type testEnv struct {
	ctx    context.Context
	cancel context.CancelFunc
	db     *storetest.Database
	pool   *pgxpool.Pool
	server *api.Server
	base   string
	client *http.Client
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel, client: &http.Client{Timeout: 10 * time.Second}}

	db, pool, err := storetest.Migrated(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	env.db, env.pool = db, pool

	logger := slog.New(slog.DiscardHandler)
	hasher, err := auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 8 * 1024, Threads: 1})
	if err != nil {
		env.cleanup()
		return nil, err
	}
	tokens, err := auth.NewTokenService([]byte(secret))
	if err != nil {
		env.cleanup()
		return nil, err
	}
	users := postgres.NewUserRepository(pool)
	gate, err := auth.NewGate(users, tokens, hasher)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	accounts, err := account.NewServiceWithLogger(users, postgres.NewCategoryRepository(pool), hasher, store.NewTransactor(pool), logger)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.server, err = api.New(api.Config{
		Gate:     gate,
		Accounts: accounts,
		Tokens:   tokens,
		TokenTTL: time.Minute,
		Logger:   logger,
	})
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if _, err := env.server.Start("127.0.0.1:0"); err != nil {
		env.cleanup()
		return nil, err
	}
	env.base = "http://" + env.server.Addr()
	return env, nil
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		_ = e.server.Stop(context.Background())
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.db != nil {
		e.db.Terminate(context.Background())
	}
	e.cancel()
}

// call sends a JSON request. user and pass go in Basic auth when user is
// non-empty; pass is ignored for bearer tokens.
func (e *testEnv) call(method, path string, body any, user, pass string) (int, map[string]any) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(e.ctx, method, e.base+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.SetBasicAuth(user, pass)
	}

	resp, err := e.client.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	}
	return resp.StatusCode, out
}

var _ = Describe("Bookmark API", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	var token string

	It("registers a user once", func() {
		status, body := env.call(http.MethodPost, "/api/register", map[string]string{"username": "alice", "password": "correct horse"}, "", "")
		Expect(status).To(Equal(http.StatusCreated))
		Expect(body["username"]).To(Equal("alice"))

		status, body = env.call(http.MethodPost, "/api/register", map[string]string{"username": "ALICE", "password": "other"}, "", "")
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body["error"]).To(Equal("A user with that username already exists."))
	})

	It("rejects a wrong password with a Basic challenge", func() {
		status, _ := env.call(http.MethodGet, "/api/profile", nil, "alice", "wrong")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("issues a token usable as a bearer credential", func() {
		status, body := env.call(http.MethodGet, "/api/token", nil, "alice", "correct horse")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["duration"]).To(BeNumerically("==", 60))
		token = body["token"].(string)

		status, body = env.call(http.MethodGet, "/api/profile", nil, token, "unused")
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["username"]).To(Equal("alice"))
	})

	It("stores categories and links for the caller", func() {
		status, _ := env.call(http.MethodPost, "/api/category", map[string]string{"title": "  Reading  "}, token, "")
		Expect(status).To(Equal(http.StatusCreated))

		status, body := env.call(http.MethodGet, "/api/category", nil, token, "")
		Expect(status).To(Equal(http.StatusOK))
		categories := body["categories"].([]any)
		Expect(categories).To(HaveLen(1))
		category := categories[0].(map[string]any)
		Expect(category["title"]).To(Equal("Reading"))

		status, _ = env.call(http.MethodPost, "/api/link", map[string]any{
			"category_id": category["id"],
			"url":         "https://go.dev/doc/effective_go",
			"title":       "Effective Go",
		}, token, "")
		Expect(status).To(Equal(http.StatusCreated))

		_, body = env.call(http.MethodGet, "/api/category", nil, token, "")
		links := body["categories"].([]any)[0].(map[string]any)["links"].([]any)
		Expect(links).To(HaveLen(1))
	})

	It("revokes tokens when the password changes", func() {
		status, _ := env.call(http.MethodPost, "/api/password", map[string]string{"new_password": "battery staple"}, token, "")
		Expect(status).To(Equal(http.StatusOK))

		status, _ = env.call(http.MethodGet, "/api/profile", nil, token, "")
		Expect(status).To(Equal(http.StatusUnauthorized))

		status, _ = env.call(http.MethodGet, "/api/profile", nil, "alice", "battery staple")
		Expect(status).To(Equal(http.StatusOK))
	})

	It("deletes the account with its bookmarks", func() {
		status, _ := env.call(http.MethodDelete, "/api/delete", nil, "alice", "battery staple")
		Expect(status).To(Equal(http.StatusOK))

		var remaining int
		Expect(env.pool.QueryRow(env.ctx, `SELECT count(*) FROM categories`).Scan(&remaining)).To(Succeed())
		Expect(remaining).To(BeZero())

		status, _ = env.call(http.MethodGet, "/api/profile", nil, "alice", "battery staple")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})
})
