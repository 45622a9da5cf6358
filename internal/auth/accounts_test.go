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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/session"
)

// =============================================================================
// VALIDATION
// =============================================================================

func TestSignupRequest_Validate(t *testing.T) {
	valid := SignupRequest{Username: "ada_l", Email: "ada@example.com", Password: "Secr3tPass", Confirm: "Secr3tPass"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*SignupRequest)
		want   string
	}{
		{"short username", func(r *SignupRequest) { r.Username = "ad" }, "username"},
		{"long username", func(r *SignupRequest) { r.Username = "a23456789012345678901" }, "username"},
		{"bad username chars", func(r *SignupRequest) { r.Username = "ada lovelace" }, "username"},
		{"bad email", func(r *SignupRequest) { r.Email = "ada-at-example" }, "email"},
		{"named email", func(r *SignupRequest) { r.Email = "Ada <ada@example.com>" }, "email"},
		{"short password", func(r *SignupRequest) { r.Password, r.Confirm = "Ab1", "Ab1" }, "at least 8"},
		{"no digit", func(r *SignupRequest) { r.Password, r.Confirm = "Abcdefgh", "Abcdefgh" }, "digit"},
		{"no upper", func(r *SignupRequest) { r.Password, r.Confirm = "abcdefg1", "abcdefg1" }, "upper-case"},
		{"mismatch", func(r *SignupRequest) { r.Confirm = "Secr3tPasz" }, "do not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Contains(t, verrs.Error(), tt.want)
		})
	}
}

// =============================================================================
// BACKEND CALLS
// =============================================================================

type accountBackend struct {
	srv      *httptest.Server
	requests atomic.Int32
	meAuth   atomic.Value
	logout   atomic.Int32

	loginBody   string
	logoutFails bool
}

func newAccountBackend(t *testing.T) *accountBackend {
	ab := &accountBackend{
		loginBody: `{"access_token":"acc","refresh_token":"ref","token_type":"bearer","username":"ada","email":"ada@example.com"}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+SignupPath, func(w http.ResponseWriter, r *http.Request) {
		ab.requests.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada_l", body["username"])
		assert.NotContains(t, body, "Confirm")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":1}`)
	})
	mux.HandleFunc("POST "+LoginPath, func(w http.ResponseWriter, r *http.Request) {
		ab.requests.Add(1)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		if r.PostForm.Get("password") != "Secr3tPass" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail":"Incorrect username or password"}`)
			return
		}
		io.WriteString(w, ab.loginBody)
	})
	mux.HandleFunc("GET "+MePath, func(w http.ResponseWriter, r *http.Request) {
		ab.requests.Add(1)
		ab.meAuth.Store(r.Header.Get("Authorization"))
		io.WriteString(w, `{"email":"me@example.com","first_name":"Ada","last_name":"Lovelace","username":"ada"}`)
	})
	mux.HandleFunc("POST "+LogoutPath, func(w http.ResponseWriter, r *http.Request) {
		ab.logout.Add(1)
		if ab.logoutFails {
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	ab.srv = httptest.NewServer(mux)
	t.Cleanup(ab.srv.Close)
	return ab
}

func newAccounts(t *testing.T, ab *accountBackend) (*Accounts, *session.Store) {
	store := newStore(t)
	guard := NewGuard(store, ab.srv.URL)
	return NewAccounts(ab.srv.URL, store, guard.Client(time.Second)), store
}

func TestSignup_ValidationMakesNoRequest(t *testing.T) {
	ab := newAccountBackend(t)
	acc, _ := newAccounts(t, ab)

	err := acc.Signup(context.Background(), SignupRequest{Username: "x", Email: "bad", Password: "p", Confirm: "q"})
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 5)
	assert.Zero(t, ab.requests.Load())
}

func TestSignup_Success(t *testing.T) {
	ab := newAccountBackend(t)
	acc, store := newAccounts(t, ab)

	err := acc.Signup(context.Background(), SignupRequest{Username: "ada_l", Email: "ada@example.com", Password: "Secr3tPass", Confirm: "Secr3tPass"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), ab.requests.Load())
	assert.False(t, store.IsAuthenticated())
}

func TestLogin_StoresSession(t *testing.T) {
	ab := newAccountBackend(t)
	acc, store := newAccounts(t, ab)

	sess, err := acc.Login(context.Background(), "ada", "Secr3tPass")
	require.NoError(t, err)
	assert.Equal(t, session.Session{AccessToken: "acc", RefreshToken: "ref", Email: "ada@example.com", Username: "ada"}, sess)
	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, int32(1), ab.requests.Load(), "profile lookup not needed")
}

func TestLogin_FillsEmailFromProfile(t *testing.T) {
	ab := newAccountBackend(t)
	ab.loginBody = `{"access_token":"acc","refresh_token":"ref"}`
	acc, _ := newAccounts(t, ab)

	sess, err := acc.Login(context.Background(), "ada", "Secr3tPass")
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", sess.Email)
	assert.Equal(t, "ada", sess.Username)
	assert.Equal(t, "Bearer acc", ab.meAuth.Load())
}

func TestLogin_Rejected(t *testing.T) {
	ab := newAccountBackend(t)
	acc, store := newAccounts(t, ab)

	_, err := acc.Login(context.Background(), "ada", "wrong")
	var apiErr *api.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Incorrect username or password", apiErr.Detail())
	assert.False(t, store.IsAuthenticated())
}

func TestLogin_MissingTokens(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no tokens", `{"token_type":"bearer"}`},
		{"no refresh token", `{"access_token":"acc","token_type":"bearer","username":"ada","email":"ada@example.com"}`},
		{"no access token", `{"refresh_token":"ref","token_type":"bearer"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab := newAccountBackend(t)
			ab.loginBody = tt.body
			acc, store := newAccounts(t, ab)

			_, err := acc.Login(context.Background(), "ada", "Secr3tPass")
			assert.ErrorIs(t, err, ErrInvalidLoginResponse)
			assert.Equal(t, session.Session{}, store.Current())
		})
	}
}

func TestMe(t *testing.T) {
	ab := newAccountBackend(t)
	acc, store := newAccounts(t, ab)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(time.Hour)), "ref", "e", "u"))
	p, err := acc.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", p.DisplayName())
	assert.Equal(t, "Bearer "+store.Current().AccessToken, ab.meAuth.Load())
}

func TestLogout_AlwaysClearsSession(t *testing.T) {
	ab := newAccountBackend(t)
	ab.logoutFails = true
	acc, store := newAccounts(t, ab)
	require.NoError(t, store.Login(makeToken(t, time.Now().Add(time.Hour)), "ref", "e", "u"))

	require.NoError(t, acc.Logout(context.Background()))
	assert.Equal(t, int32(1), ab.logout.Load())
	assert.False(t, store.IsAuthenticated())

	// Already signed out: no backend call.
	require.NoError(t, acc.Logout(context.Background()))
	assert.Equal(t, int32(1), ab.logout.Load())
}

func TestProfile_DisplayName(t *testing.T) {
	assert.Equal(t, "ada", Profile{Username: "ada"}.DisplayName())
	assert.Equal(t, "Ada", Profile{FirstName: "Ada", Username: "ada"}.DisplayName())
}
