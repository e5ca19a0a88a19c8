// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

//go:build integration

package store_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/linkstash/linkstash/internal/store"
	"github.com/linkstash/linkstash/internal/store/storetest"
)

var _ = Describe("Migrator", func() {
	var (
		ctx      context.Context
		db       *storetest.Database
		migrator *store.Migrator
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.StartPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
		migrator, err = store.NewMigrator(db.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = migrator.Close()
		db.Terminate(ctx)
	})

	It("walks the full up/down cycle", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())

		Expect(migrator.Up()).To(Succeed())
		status, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Version).To(Equal(uint(2)))
		Expect(status.Pending).To(BeEmpty())

		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Down()).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})

var _ = Describe("Transactor", func() {
	var (
		ctx context.Context
		db  *storetest.Database
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if db != nil {
			db.Terminate(ctx)
		}
	})

	It("discards writes when the unit of work fails", func() {
		d, p, err := storetest.Migrated(ctx)
		Expect(err).NotTo(HaveOccurred())
		db = d
		defer p.Close()

		tx := store.NewTransactor(p)
		failure := errors.New("abort")
		err = tx.InTransaction(ctx, func(ctx context.Context) error {
			_, execErr := store.Conn(ctx, p).Exec(ctx,
				`INSERT INTO users (username, password_hash, security_stamp) VALUES ('ghost', 'x', 'y')`)
			Expect(execErr).NotTo(HaveOccurred())
			return failure
		})
		Expect(err).To(MatchError(failure))

		var count int
		Expect(p.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count)).To(Succeed())
		Expect(count).To(BeZero())
	})
})
