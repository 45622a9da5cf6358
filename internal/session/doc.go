// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session persists and restores the signed-in user's credentials.
//
// The Store is the single source of truth for "is this client authenticated".
// It keeps four entries (access token, refresh token, email, username) in a
// Jar, each with the same lifetime, and tells subscribers whenever the
// session changes.
//
// # Key Types
//
//   - Session: immutable snapshot of the credentials
//   - Store: restore / login / logout, plus token updates from the refresh guard
//   - Jar: durable key/value storage with expiry (FileJar, SQLiteJar, SealedJar)
//   - Watcher: follows jar changes made by other parley processes
//   - View: screens whose access depends on the session (see Route)
//
// # Usage
//
//	jar := session.NewFileJar(path)
//	store := session.NewStore(jar, session.WithTTL(7*24*time.Hour))
//	if _, err := store.Restore(); err != nil {
//	    log.Warn("could not restore session", zap.Error(err))
//	}
//	if to, redirect := store.Route(session.ViewChat); redirect {
//	    // navigate to `to`
//	}
package session
