// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security seals secrets that parley keeps on disk.
//
// Values are encrypted with AES-256-GCM under a key derived from a user
// passphrase with PBKDF2-SHA-256. Sealed values are text: the prefix "ENC:"
// followed by base64(nonce || ciphertext || tag), so they can live inside
// JSON or SQLite columns unchanged.
//
// # Usage
//
//	salt, _ := security.GenerateSalt()
//	s, err := security.NewSealer(passphrase, salt)
//	sealed, err := s.Seal(accessToken)
//	plain, err := s.Open(sealed)
package security
