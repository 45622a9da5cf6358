// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/session"
)

func makeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "ada", ExpiresAt: jwt.NewNumericDate(exp)}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func newStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(session.NewFileJar(filepath.Join(t.TempDir(), "session.json")))
}

// fakeBackend serves the refresh endpoint and one protected endpoint.
type fakeBackend struct {
	t         *testing.T
	srv       *httptest.Server
	refreshes atomic.Int32
	calls     atomic.Int32

	mu          sync.Mutex
	lastAuth    string
	refreshSeen string

	refreshStatus int
	refreshDelay  time.Duration
	newAccess     string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	fb := &fakeBackend{t: t, refreshStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+RefreshPath, func(w http.ResponseWriter, r *http.Request) {
		fb.refreshes.Add(1)
		var body refreshRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		fb.mu.Lock()
		fb.refreshSeen = body.RefreshToken
		fb.mu.Unlock()
		assert.Empty(t, r.Header.Get("Authorization"))

		if fb.refreshDelay > 0 {
			time.Sleep(fb.refreshDelay)
		}
		if fb.refreshStatus != http.StatusOK {
			w.WriteHeader(fb.refreshStatus)
			io.WriteString(w, `{"detail":"Invalid refresh token"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"tokens": map[string]string{"access_token": fb.newAccess, "refresh_token": "refresh-2"},
		})
	})
	mux.HandleFunc("GET /api/protected", func(w http.ResponseWriter, r *http.Request) {
		fb.calls.Add(1)
		fb.mu.Lock()
		fb.lastAuth = r.Header.Get("Authorization")
		fb.mu.Unlock()
		io.WriteString(w, "ok")
	})
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) auth() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastAuth
}

func (fb *fakeBackend) seenRefresh() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.refreshSeen
}

func (fb *fakeBackend) get(t *testing.T, hc *http.Client) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, fb.srv.URL+"/api/protected", nil)
	require.NoError(t, err)
	resp, err := hc.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

// =============================================================================
// JWT
// =============================================================================

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := ExpiresAt(makeToken(t, exp))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	_, err = ExpiresAt("not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformedToken)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("k"))
	require.NoError(t, err)
	got, err = ExpiresAt(noExp)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		token string
		skew  time.Duration
		want  bool
	}{
		{"past", makeToken(t, now.Add(-time.Minute)), 0, true},
		{"future", makeToken(t, now.Add(time.Hour)), 0, false},
		{"within skew", makeToken(t, now.Add(30*time.Second)), time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expired(tt.token, now, tt.skew)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Expired("garbage", now, 0)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

// =============================================================================
// GUARD
// =============================================================================

func TestGuard_NoTokenForwardsUnauthenticated(t *testing.T) {
	fb := newFakeBackend(t)
	g := NewGuard(newStore(t), fb.srv.URL)

	resp, err := fb.get(t, g.Client(time.Second))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, fb.auth())
	assert.Zero(t, fb.refreshes.Load())
}

func TestGuard_FreshTokenAttachedWithoutRefresh(t *testing.T) {
	fb := newFakeBackend(t)
	store := newStore(t)
	access := makeToken(t, time.Now().Add(time.Hour))
	require.NoError(t, store.Login(access, "refresh-1", "e", "u"))

	_, err := fb.get(t, NewGuard(store, fb.srv.URL).Client(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+access, fb.auth())
	assert.Zero(t, fb.refreshes.Load())
}

func TestGuard_ExpiredTokenRefreshedFirst(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = makeToken(t, time.Now().Add(time.Hour))
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(-time.Minute)), "refresh-1", "ada@example.com", "ada"))

	resp, err := fb.get(t, NewGuard(store, fb.srv.URL).Client(time.Second))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, int32(1), fb.refreshes.Load())
	assert.Equal(t, "refresh-1", fb.seenRefresh())
	assert.Equal(t, "Bearer "+fb.newAccess, fb.auth())

	cur := store.Current()
	assert.Equal(t, fb.newAccess, cur.AccessToken)
	assert.Equal(t, "refresh-2", cur.RefreshToken)
	assert.Equal(t, "ada", cur.Username)
}

func TestGuard_UndecodableTokenExpiresSession(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = makeToken(t, time.Now().Add(time.Hour))
	store := newStore(t)
	require.NoError(t, store.Login("opaque", "refresh-1", "e", "u"))

	_, err := fb.get(t, NewGuard(store, fb.srv.URL).Client(time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, ErrMalformedToken)

	assert.Zero(t, fb.refreshes.Load(), "no refresh for an unreadable token")
	assert.Zero(t, fb.calls.Load(), "request must not be forwarded")
	assert.False(t, store.IsAuthenticated())
}

func TestGuard_TokenWithoutExpiryForwardedUnchanged(t *testing.T) {
	fb := newFakeBackend(t)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ada"}).SignedString([]byte("k"))
	require.NoError(t, err)
	store := newStore(t)
	require.NoError(t, store.Login(noExp, "refresh-1", "e", "u"))

	hc := NewGuard(store, fb.srv.URL).Client(time.Second)
	for range 3 {
		resp, err := fb.get(t, hc)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	assert.Zero(t, fb.refreshes.Load())
	assert.Equal(t, int32(3), fb.calls.Load())
	assert.Equal(t, "Bearer "+noExp, fb.auth())
	assert.True(t, store.IsAuthenticated())
}

func TestGuard_RefreshAfterLogoutDoesNotRestoreSession(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = makeToken(t, time.Now().Add(time.Hour))
	fb.refreshDelay = 100 * time.Millisecond
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(-time.Minute)), "refresh-1", "e", "u"))

	errCh := make(chan error, 1)
	go func() {
		_, err := fb.get(t, NewGuard(store, fb.srv.URL).Client(5*time.Second))
		errCh <- err
	}()
	require.Eventually(t, func() bool { return fb.refreshes.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, store.Logout())

	assert.ErrorIs(t, <-errCh, ErrSessionExpired)
	assert.False(t, store.IsAuthenticated())
	assert.Equal(t, session.Session{}, store.Current())
}

func TestGuard_RefreshFailureExpiresSession(t *testing.T) {
	fb := newFakeBackend(t)
	fb.refreshStatus = http.StatusUnauthorized
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(-time.Minute)), "refresh-1", "e", "u"))

	_, err := fb.get(t, NewGuard(store, fb.srv.URL).Client(time.Second))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpired))

	var expired *SessionExpiredError
	require.True(t, errors.As(err, &expired))
	assert.Contains(t, expired.Error(), "Invalid refresh token")

	assert.Zero(t, fb.calls.Load(), "request must not be forwarded")
	assert.False(t, store.IsAuthenticated())
}

func TestGuard_RefreshMissingTokensExpiresSession(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = "" // reply without an access token
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(-time.Minute)), "refresh-1", "e", "u"))

	_, err := fb.get(t, NewGuard(store, fb.srv.URL).Client(time.Second))
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, store.IsAuthenticated())
}

func TestGuard_SkewRefreshesEarly(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = makeToken(t, time.Now().Add(time.Hour))
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(20*time.Second)), "refresh-1", "e", "u"))

	_, err := fb.get(t, NewGuard(store, fb.srv.URL, WithSkew(time.Minute)).Client(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int32(1), fb.refreshes.Load())
}

func TestGuard_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = makeToken(t, time.Now().Add(time.Hour))
	fb.refreshDelay = 100 * time.Millisecond
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(-time.Minute)), "refresh-1", "e", "u"))

	hc := NewGuard(store, fb.srv.URL).Client(5 * time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := hc.Get(fb.srv.URL + "/api/protected")
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
	assert.Equal(t, int32(1), fb.refreshes.Load())
	assert.Equal(t, int32(20), fb.calls.Load())
}

func TestGuard_CancelledWaiterDoesNotExpireSession(t *testing.T) {
	fb := newFakeBackend(t)
	fb.newAccess = makeToken(t, time.Now().Add(time.Hour))
	fb.refreshDelay = 200 * time.Millisecond
	store := newStore(t)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(-time.Minute)), "refresh-1", "e", "u"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fb.srv.URL+"/api/protected", nil)
	require.NoError(t, err)

	_, err = NewGuard(store, fb.srv.URL).Client(time.Second).Do(req)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSessionExpired))

	// The shared refresh still completes in the background.
	require.Eventually(t, func() bool {
		return store.Current().RefreshToken == "refresh-2"
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, store.IsAuthenticated())
}
