// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"errors"
	"strings"
)

// ErrSessionExpired is matched by every *SessionExpiredError.
var ErrSessionExpired = errors.New("session expired")

// SessionExpiredError is returned instead of forwarding a request whose
// token could not be refreshed. Err is the refresh failure.
type SessionExpiredError struct {
	Err error
}

// Error implements the error interface.
func (e *SessionExpiredError) Error() string {
	if e.Err == nil {
		return ErrSessionExpired.Error()
	}
	return ErrSessionExpired.Error() + ": " + e.Err.Error()
}

// Unwrap returns the refresh failure.
func (e *SessionExpiredError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrSessionExpired) true.
func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}

// ValidationErrors collects client-side form problems. Nothing is sent to the
// backend when it is non-empty.
type ValidationErrors []string

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v, "; ")
}
