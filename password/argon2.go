// Package password hashes and verifies credentials with argon2id in PHC
// string format, so hashes carry their own parameters and can be upgraded
// in place as cost settings grow.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPasswordLen        = 8
)

// Config is the argon2id cost profile. Treat as immutable after Build.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (c Config) validate() error {
	if c.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if c.Time < 1 {
		return errors.New("password time cost must be >= 1")
	}
	if c.Parallelism < 1 {
		return errors.New("password parallelism must be >= 1")
	}
	if c.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if c.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	return nil
}

// Hasher derives and checks argon2id hashes under one cost profile.
type Hasher struct {
	config Config
}

// NewHasher validates the profile and returns a Hasher.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a PHC-formatted argon2id hash from the password. Password
// bytes are used exactly as provided, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("password must be at least %d bytes", minPasswordLen)
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify checks a password against a PHC hash using the parameters embedded
// in the hash, comparing in constant time.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1, nil
}

// NeedsRehash reports whether the stored hash was derived with weaker
// parameters than the current profile and should be recomputed on the next
// successful login.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}

	weaker := h.config.Memory > p.memory ||
		h.config.Time > p.time ||
		h.config.Parallelism > p.parallelism ||
		h.config.KeyLength != uint32(len(p.hash))
	return weaker, nil
}

type phcFields struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*phcFields, error) {
	var (
		version int
		p       phcFields
		saltB64 string
		hashB64 string
	)

	n, err := fmt.Sscanf(encoded, "$argon2id$v=%d$m=%d,t=%d,p=%d$%s", &version, &p.memory, &p.time, &p.parallelism, &saltB64)
	if err != nil || n != 5 {
		return nil, errors.New("malformed argon2id hash")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	// Sscanf's %s is greedy; the final field holds "salt$hash".
	for i := 0; i < len(saltB64); i++ {
		if saltB64[i] == '$' {
			hashB64 = saltB64[i+1:]
			saltB64 = saltB64[:i]
			break
		}
	}
	if hashB64 == "" {
		return nil, errors.New("malformed argon2id hash")
	}

	if p.memory < minMemoryKB || p.time < 1 || p.parallelism < 1 {
		return nil, errors.New("argon2id parameters below minimum")
	}

	if p.salt, err = base64.StdEncoding.DecodeString(saltB64); err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if uint32(len(p.salt)) < minSaltLength {
		return nil, errors.New("salt too short")
	}
	if p.hash, err = base64.StdEncoding.DecodeString(hashB64); err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(p.hash) == 0 {
		return nil, errors.New("empty hash")
	}

	return &p, nil
}
