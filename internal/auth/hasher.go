// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Linkstash Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	DefaultArgon2Time    = 1         // iterations
	DefaultArgon2Memory  = 64 * 1024 // KiB
	DefaultArgon2Threads = 4         // parallelism

	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. Malformed digests
	// never match.
	Verify(password, digest string) bool

	// NeedsRehash reports whether digest was produced with parameters other
	// than the hasher's current ones.
	NeedsRehash(digest string) bool
}

// Argon2Params is the cost configuration of an argon2id digest.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2Params returns the OWASP baseline parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    DefaultArgon2Time,
		Memory:  DefaultArgon2Memory,
		Threads: DefaultArgon2Threads,
	}
}

// Validate rejects parameters argon2 cannot run with.
func (p Argon2Params) Validate() error {
	switch {
	case p.Time < 1:
		return oops.Code("AUTH_INVALID_PARAMS").With("time", p.Time).Errorf("argon2 time must be at least 1")
	case p.Threads < 1:
		return oops.Code("AUTH_INVALID_PARAMS").With("threads", p.Threads).Errorf("argon2 threads must be at least 1")
	case p.Memory < 8*uint32(p.Threads):
		return oops.Code("AUTH_INVALID_PARAMS").
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("argon2 memory must be at least 8 KiB per thread")
	}
	return nil
}

// Digest is a parsed argon2id PHC string.
type Digest struct {
	Version int
	Params  Argon2Params
	Salt    []byte
	Key     []byte
}

// ParseDigest decodes $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<key>.
func ParseDigest(encoded string) (*Digest, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return nil, oops.Code("AUTH_INVALID_HASH").With("algorithm", parts[1]).Errorf("unsupported hash algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return nil, oops.Code("AUTH_INVALID_HASH").With("version", version).Errorf("unsupported argon2 version")
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads > 255 {
		return nil, oops.Code("AUTH_INVALID_HASH").With("threads", threads).Errorf("threads value exceeds uint8 max")
	}

	params := Argon2Params{Time: time, Memory: memory, Threads: uint8(threads)}
	if err := params.Validate(); err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate key length to prevent integer overflow in uint32 conversion
	if len(key) == 0 || len(key) > 1<<10 {
		return nil, oops.Code("AUTH_INVALID_HASH").With("key_len", len(key)).Errorf("invalid hash key length")
	}

	return &Digest{Version: version, Params: params, Salt: salt, Key: key}, nil
}

// String encodes the digest in PHC form.
func (d *Digest) String() string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		d.Version,
		d.Params.Memory,
		d.Params.Time,
		d.Params.Threads,
		base64.RawStdEncoding.EncodeToString(d.Salt),
		base64.RawStdEncoding.EncodeToString(d.Key),
	)
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with the default parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates a hasher with custom cost parameters.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Params returns the cost parameters used for new digests.
func (h *Argon2idHasher) Params() Argon2Params {
	return h.params
}

// Hash produces an argon2id digest of the password with a fresh salt.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	d := &Digest{
		Version: argon2.Version,
		Params:  h.params,
		Salt:    salt,
		Key:     argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, argon2KeyLen),
	}
	return d.String(), nil
}

// Verify recomputes the key with the digest's own salt and parameters.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	d, err := ParseDigest(digest)
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), d.Salt, d.Params.Time, d.Params.Memory, d.Params.Threads, uint32(len(d.Key)))
	return subtle.ConstantTimeCompare(computed, d.Key) == 1
}

// NeedsRehash returns true for foreign or unparseable digests and for
// argon2id digests produced with different cost parameters.
func (h *Argon2idHasher) NeedsRehash(digest string) bool {
	d, err := ParseDigest(digest)
	if err != nil {
		return true
	}
	return d.Params != h.params || len(d.Key) != argon2KeyLen
}

var _ PasswordHasher = (*Argon2idHasher)(nil)
