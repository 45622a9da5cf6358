// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"time"
)

// ErrJarClosed is returned by jars used after Close.
var ErrJarClosed = errors.New("session jar is closed")

// Entry is one persisted value. A zero ExpiresAt never expires.
type Entry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether e is past its lifetime at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Jar is durable client-side key/value storage.
type Jar interface {
	// Load returns every stored entry, expired ones included.
	Load() (map[string]Entry, error)
	// Save replaces the stored entries with entries.
	Save(entries map[string]Entry) error
	// Clear removes every entry. Clearing an empty jar is not an error.
	Clear() error
	// Path is the file backing the jar, watched for outside changes.
	Path() string
	Close() error
}
