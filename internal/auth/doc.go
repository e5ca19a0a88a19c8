// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

// Package auth provides authentication primitives for linkstash.
//
// # Domain Types
//
// Users should be created with NewUser, which validates the username and
// assigns a fresh security stamp. Direct struct initialization bypasses
// validation. Repository implementations receive pre-validated users.
//
// # Credentials
//
//   - Argon2idHasher - salted argon2id digests in PHC form
//   - TokenService - HS256 tokens carrying the user ID and security stamp
//   - Gate - resolves a request's (identifier, secret) pair, token first
//
// A token stays valid until it expires or until the user's security stamp
// changes. Password changes rotate the stamp.
package auth
