// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"

	"github.com/jeranaias/parley/internal/security"
)

// Backend names accepted by OpenJar.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// OpenJar builds the jar selected by backend at path, sealing values when a
// passphrase is given.
func OpenJar(backend, path, passphrase string, opts ...security.SealerOption) (Jar, error) {
	var jar Jar
	switch backend {
	case "", BackendFile:
		jar = NewFileJar(path)
	case BackendSQLite:
		sj, err := OpenSQLiteJar(path)
		if err != nil {
			return nil, err
		}
		jar = sj
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}

	if passphrase == "" {
		return jar, nil
	}
	sealed, err := NewSealedJar(jar, passphrase, opts...)
	if err != nil {
		jar.Close()
		return nil, err
	}
	return sealed, nil
}
