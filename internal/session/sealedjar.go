// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/jeranaias/parley/internal/security"
)

// saltKey holds the PBKDF2 salt next to the sealed entries.
const saltKey = "_salt"

// SealedJar encrypts every value before it reaches the wrapped jar.
type SealedJar struct {
	Jar

	passphrase string
	opts       []security.SealerOption

	mu     sync.Mutex
	sealer *security.Sealer
}

// NewSealedJar wraps inner so values are sealed with passphrase.
func NewSealedJar(inner Jar, passphrase string, opts ...security.SealerOption) (*SealedJar, error) {
	if passphrase == "" {
		return nil, security.ErrEmptyPassphrase
	}
	return &SealedJar{Jar: inner, passphrase: passphrase, opts: opts}, nil
}

// sealerFor returns a sealer for salt, deriving the key only when the salt
// differs from the cached one.
func (j *SealedJar) sealerFor(salt []byte) (*security.Sealer, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sealer != nil && (salt == nil || bytes.Equal(j.sealer.Salt(), salt)) {
		return j.sealer, nil
	}
	if salt == nil {
		fresh, err := security.GenerateSalt()
		if err != nil {
			return nil, err
		}
		salt = fresh
	}
	s, err := security.NewSealer(j.passphrase, salt, j.opts...)
	if err != nil {
		return nil, err
	}
	j.sealer = s
	return s, nil
}

// Load implements Jar.
func (j *SealedJar) Load() (map[string]Entry, error) {
	raw, err := j.Jar.Load()
	if err != nil {
		return nil, err
	}
	saltEntry, ok := raw[saltKey]
	delete(raw, saltKey)
	if !ok {
		// Nothing sealed yet; plaintext values pass through Open unchanged.
		return raw, nil
	}

	salt, err := base64.StdEncoding.DecodeString(saltEntry.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid jar salt: %w", err)
	}
	s, err := j.sealerFor(salt)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Entry, len(raw))
	for k, e := range raw {
		plain, err := s.Open(e.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", k, err)
		}
		e.Value = plain
		out[k] = e
	}
	return out, nil
}

// Save implements Jar.
func (j *SealedJar) Save(entries map[string]Entry) error {
	s, err := j.sealerFor(nil)
	if err != nil {
		return err
	}
	out := make(map[string]Entry, len(entries)+1)
	for k, e := range entries {
		sealed, err := s.Seal(e.Value)
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", k, err)
		}
		e.Value = sealed
		out[k] = e
	}
	out[saltKey] = Entry{Value: base64.StdEncoding.EncodeToString(s.Salt())}
	return j.Jar.Save(out)
}
