// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// SealedPrefix marks a sealed value.
const SealedPrefix = "ENC:"

const (
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32
	// SaltSize is the PBKDF2 salt size in bytes.
	SaltSize = 32
	// PBKDF2Iterations follows the OWASP 2023 guidance for PBKDF2-SHA-256.
	PBKDF2Iterations = 600000
)

var (
	// ErrEmptyPassphrase is returned when no passphrase is supplied.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")
	// ErrInvalidSealed indicates a malformed sealed value.
	ErrInvalidSealed = errors.New("invalid sealed value")
	// ErrDecryptionFailed indicates a wrong passphrase or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// =============================================================================
// SEALER
// =============================================================================

// Sealer encrypts and decrypts short secrets. It is safe for concurrent use.
type Sealer struct {
	aead       cipher.AEAD
	salt       []byte
	iterations int
}

// SealerOption customises a Sealer.
type SealerOption func(*Sealer)

// WithIterations overrides the PBKDF2 iteration count. Tests use a small
// value; production callers should keep the default.
func WithIterations(n int) SealerOption {
	return func(s *Sealer) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// NewSealer derives the key for passphrase and salt.
func NewSealer(passphrase string, salt []byte, opts ...SealerOption) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: missing salt", ErrInvalidSealed)
	}

	s := &Sealer{salt: append([]byte(nil), salt...), iterations: PBKDF2Iterations}
	for _, opt := range opts {
		opt(s)
	}

	key := pbkdf2.Key([]byte(passphrase), s.salt, s.iterations, KeySize, sha256.New)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	s.aead = aead
	return s, nil
}

// Salt returns the salt the key was derived with.
func (s *Sealer) Salt() []byte {
	return append([]byte(nil), s.salt...)
}

// Seal encrypts plaintext. Empty input stays empty so cleared values remain
// recognisable.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Values without the prefix are
// returned unchanged so jars written before sealing was enabled still load.
func (s *Sealer) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSealed, err)
	}
	ns := s.aead.NonceSize()
	if len(data) < ns {
		return "", ErrInvalidSealed
	}
	plain, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
