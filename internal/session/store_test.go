// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/security"
)

// fastSeal keeps PBKDF2 cheap in tests.
var fastSeal = security.WithIterations(1000)

func newFileStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()
	return NewStore(NewFileJar(path), opts...)
}

func TestSession_IsAuthenticated(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		want bool
	}{
		{"empty", Session{}, false},
		{"access only", Session{AccessToken: "a"}, false},
		{"refresh only", Session{RefreshToken: "r"}, false},
		{"both", Session{AccessToken: "a", RefreshToken: "r"}, true},
		{"identity without tokens", Session{Email: "e", Username: "u"}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.IsAuthenticated(), tt.name)
	}
}

func TestStore_LoginRestoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := newFileStore(t, path)
	require.NoError(t, s.Login("acc", "ref", "ada@example.com", "ada"))
	assert.True(t, s.IsAuthenticated())

	// A new store simulates a reload.
	reloaded := newFileStore(t, path)
	got, err := reloaded.Restore()
	require.NoError(t, err)
	assert.Equal(t, Session{AccessToken: "acc", RefreshToken: "ref", Email: "ada@example.com", Username: "ada"}, got)
	assert.True(t, reloaded.IsAuthenticated())

	// Restore is idempotent.
	again, err := reloaded.Restore()
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestStore_LogoutIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := newFileStore(t, path)
	require.NoError(t, s.Login("a", "r", "e", "u"))

	require.NoError(t, s.Logout())
	first := s.Current()
	require.NoError(t, s.Logout())
	assert.Equal(t, first, s.Current())
	assert.Equal(t, Session{}, s.Current())
	assert.False(t, s.IsAuthenticated())

	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	got, err := newFileStore(t, path).Restore()
	require.NoError(t, err)
	assert.False(t, got.IsAuthenticated())
}

func TestStore_ExpiredEntriesDropped(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	path := filepath.Join(t.TempDir(), "session.json")

	s := newFileStore(t, path, WithClock(clock), WithTTL(7*24*time.Hour))
	require.NoError(t, s.Login("a", "r", "e", "u"))

	now = now.Add(7*24*time.Hour - time.Second)
	got, err := s.Restore()
	require.NoError(t, err)
	assert.True(t, got.IsAuthenticated())

	now = now.Add(time.Second)
	got, err = s.Restore()
	require.NoError(t, err)
	assert.False(t, got.IsAuthenticated())
	assert.Equal(t, Session{}, got)
}

func TestStore_UpdateTokensKeepsIdentity(t *testing.T) {
	s := newFileStore(t, filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, s.Login("a1", "r1", "e", "u"))
	require.NoError(t, s.UpdateTokens("a2", "r2"))
	assert.Equal(t, Session{AccessToken: "a2", RefreshToken: "r2", Email: "e", Username: "u"}, s.Current())
}

func TestStore_UpdateTokensAfterLogoutStaysSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := newFileStore(t, path)
	require.NoError(t, s.Login("a1", "r1", "e", "u"))
	require.NoError(t, s.Logout())

	err := s.UpdateTokens("a2", "r2")
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Equal(t, Session{}, s.Current())

	reloaded, err := newFileStore(t, path).Restore()
	require.NoError(t, err)
	assert.False(t, reloaded.IsAuthenticated())
}

func TestStore_SubscribersSeeChangesOnly(t *testing.T) {
	s := newFileStore(t, filepath.Join(t.TempDir(), "session.json"))

	var mu sync.Mutex
	var seen []bool
	unsubscribe := s.Subscribe(func(sess Session) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, sess.IsAuthenticated())
	})

	require.NoError(t, s.Login("a", "r", "e", "u"))
	_, _ = s.Restore() // unchanged, no event
	require.NoError(t, s.Logout())
	require.NoError(t, s.Logout()) // unchanged, no event
	unsubscribe()
	require.NoError(t, s.Login("a", "r", "e", "u"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

func TestStore_RestoreErrorKeepsSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := newFileStore(t, path)
	require.NoError(t, s.Login("a", "r", "e", "u"))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := s.Restore()
	require.Error(t, err)
	assert.True(t, s.IsAuthenticated())
}

func TestStore_Route(t *testing.T) {
	s := newFileStore(t, filepath.Join(t.TempDir(), "session.json"))

	to, redirect := s.Route(ViewChat)
	assert.True(t, redirect)
	assert.Equal(t, ViewSignIn, to)

	require.NoError(t, s.Login("a", "r", "e", "u"))
	to, redirect = s.Route(ViewSignIn)
	assert.True(t, redirect)
	assert.Equal(t, ViewHome, to)

	_, redirect = s.Route(ViewChat)
	assert.False(t, redirect)
}

func TestPolicy(t *testing.T) {
	authed := Session{AccessToken: "a", RefreshToken: "r"}
	for _, v := range []View{ViewSignIn, ViewSignUp, ViewResetPassword, ViewVerifiedEmail} {
		to, ok := Policy(v, authed)
		assert.True(t, ok, v)
		assert.Equal(t, ViewHome, to)

		_, ok = Policy(v, Session{})
		assert.False(t, ok, v)
	}
	for _, v := range []View{ViewChat, ViewProfile} {
		to, ok := Policy(v, Session{})
		assert.True(t, ok, v)
		assert.Equal(t, ViewSignIn, to)
	}
	_, ok := Policy(ViewHome, Session{})
	assert.False(t, ok)
}

func TestSealedFileJar_NoPlaintextOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	jar, err := OpenJar(BackendFile, path, "hunter2", fastSeal)
	require.NoError(t, err)

	s := NewStore(jar)
	require.NoError(t, s.Login("access-token-value", "refresh-token-value", "ada@example.com", "ada"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "access-token-value"))
	assert.False(t, strings.Contains(string(raw), "ada@example.com"))
	assert.Contains(t, string(raw), security.SealedPrefix)

	// A fresh process with the same passphrase reads it back.
	jar2, err := OpenJar(BackendFile, path, "hunter2", fastSeal)
	require.NoError(t, err)
	got, err := NewStore(jar2).Restore()
	require.NoError(t, err)
	assert.Equal(t, "access-token-value", got.AccessToken)
	assert.Equal(t, "ada", got.Username)

	// The wrong passphrase fails loudly instead of yielding garbage.
	jar3, err := OpenJar(BackendFile, path, "wrong", fastSeal)
	require.NoError(t, err)
	_, err = NewStore(jar3).Restore()
	assert.ErrorIs(t, err, security.ErrDecryptionFailed)
}

func TestSQLiteJar_RoundTripAndExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	jar, err := OpenJar(BackendSQLite, path, "")
	require.NoError(t, err)
	defer jar.Close()

	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(jar, WithClock(func() time.Time { return now }), WithTTL(time.Hour))
	require.NoError(t, s.Login("a", "r", "e", "u"))

	entries, err := jar.Load()
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.True(t, entries[KeyAccessToken].ExpiresAt.Equal(now.Add(time.Hour)))

	got, err := s.Restore()
	require.NoError(t, err)
	assert.True(t, got.IsAuthenticated())

	now = now.Add(2 * time.Hour)
	got, err = s.Restore()
	require.NoError(t, err)
	assert.False(t, got.IsAuthenticated())

	require.NoError(t, s.Logout())
	entries, err = jar.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteJar_Sealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	jar, err := OpenJar(BackendSQLite, path, "pw", fastSeal)
	require.NoError(t, err)
	defer jar.Close()

	s := NewStore(jar)
	require.NoError(t, s.Login("a", "r", "e", "u"))

	sealed := jar.(*SealedJar)
	raw, err := sealed.Jar.Load()
	require.NoError(t, err)
	assert.True(t, security.IsSealed(raw[KeyAccessToken].Value))
	assert.Contains(t, raw, saltKey)

	got, err := s.Restore()
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
}

func TestOpenJar_UnknownBackend(t *testing.T) {
	_, err := OpenJar("redis", filepath.Join(t.TempDir(), "x"), "")
	assert.Error(t, err)
}

func TestFileJar_Closed(t *testing.T) {
	jar := NewFileJar(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, jar.Close())
	_, err := jar.Load()
	assert.ErrorIs(t, err, ErrJarClosed)
}
