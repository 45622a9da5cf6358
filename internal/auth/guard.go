// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/session"
)

const (
	// RefreshPath exchanges a refresh token for a new pair.
	RefreshPath = "/api/auth/refresh"

	// refreshTimeout bounds the shared refresh request, which outlives the
	// context of whichever caller started it.
	refreshTimeout = 15 * time.Second
)

// TokenStore is the part of session.Store the guard needs.
type TokenStore interface {
	Current() session.Session
	UpdateTokens(accessToken, refreshToken string) error
	Logout() error
}

// Guard authorises requests, refreshing the token pair when the access token
// has expired.
type Guard struct {
	base       http.RoundTripper
	store      TokenStore
	refreshURL string
	skew       time.Duration
	now        func() time.Time
	log        *zap.Logger

	group singleflight.Group
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithTransport sets the transport requests are forwarded to.
func WithTransport(rt http.RoundTripper) GuardOption {
	return func(g *Guard) {
		if rt != nil {
			g.base = rt
		}
	}
}

// WithSkew treats tokens expiring within skew as already expired.
func WithSkew(skew time.Duration) GuardOption {
	return func(g *Guard) { g.skew = skew }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GuardOption {
	return func(g *Guard) { g.log = logging.OrNop(l).Named("auth") }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard that refreshes against baseURL.
func NewGuard(store TokenStore, baseURL string, opts ...GuardOption) *Guard {
	g := &Guard{
		base:       http.DefaultTransport,
		store:      store,
		refreshURL: strings.TrimSuffix(baseURL, "/") + RefreshPath,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Base returns the unguarded transport.
func (g *Guard) Base() http.RoundTripper {
	return g.base
}

// Client returns an *http.Client that sends every request through g.
func (g *Guard) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: g, Timeout: timeout}
}

// RoundTrip implements http.RoundTripper.
func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	sess := g.store.Current()
	if sess.AccessToken == "" {
		return g.base.RoundTrip(req)
	}

	token := sess.AccessToken
	expired, err := Expired(token, g.now(), g.skew)
	if err != nil {
		g.log.Warn("unreadable access token, signing out", zap.Error(err))
		closeBody(req)
		return nil, g.expire(err)
	}
	if expired {
		fresh, err := g.refresh(req.Context(), sess.RefreshToken)
		if err != nil {
			closeBody(req)
			return nil, err
		}
		token = fresh
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return g.base.RoundTrip(out)
}

// refresh returns a fresh access token. Callers presenting the same refresh
// token share one exchange.
func (g *Guard) refresh(ctx context.Context, refreshToken string) (string, error) {
	ch := g.group.DoChan(refreshToken, func() (any, error) {
		// Another caller may have rotated the pair after this one read it.
		if cur := g.store.Current(); cur.RefreshToken != refreshToken && cur.AccessToken != "" {
			if expired, err := Expired(cur.AccessToken, g.now(), g.skew); err == nil && !expired {
				return cur.AccessToken, nil
			}
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return g.exchange(rctx, refreshToken)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// expire signs the user out and wraps cause as *SessionExpiredError.
func (g *Guard) expire(cause error) error {
	if err := g.store.Logout(); err != nil {
		g.log.Warn("logout after expired session", zap.Error(err))
	}
	return &SessionExpiredError{Err: cause}
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"tokens"`
}

// exchange performs the refresh and updates the store. Any failure logs the
// user out and is returned as *SessionExpiredError.
func (g *Guard) exchange(ctx context.Context, refreshToken string) (string, error) {
	access, refresh, err := g.requestTokens(ctx, refreshToken)
	if err != nil {
		g.log.Warn("token refresh failed, signing out", zap.Error(err))
		return "", g.expire(err)
	}

	if err := g.store.UpdateTokens(access, refresh); errors.Is(err, session.ErrSignedOut) {
		// The user signed out while the exchange was in flight.
		return "", &SessionExpiredError{Err: err}
	} else if err != nil {
		// The new pair still authorises this request.
		g.log.Warn("failed to persist refreshed tokens", zap.Error(err))
	}
	g.log.Debug("tokens refreshed")
	return access, nil
}

func (g *Guard) requestTokens(ctx context.Context, refreshToken string) (string, string, error) {
	if refreshToken == "" {
		return "", "", errors.New("no refresh token")
	}

	data, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.refreshURL, bytes.NewReader(data))
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.base.RoundTrip(req)
	if err != nil {
		return "", "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := api.CheckResponse(resp); err != nil {
		return "", "", err
	}
	body, err := api.ReadBody(resp)
	if err != nil {
		return "", "", err
	}

	var out refreshResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", fmt.Errorf("failed to parse refresh response: %w", err)
	}
	if out.Tokens.AccessToken == "" || out.Tokens.RefreshToken == "" {
		return "", "", errors.New("refresh response is missing tokens")
	}
	return out.Tokens.AccessToken, out.Tokens.RefreshToken, nil
}
