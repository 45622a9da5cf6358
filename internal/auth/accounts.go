// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/session"
)

// Account endpoints.
const (
	SignupPath = "/api/signup"
	LoginPath  = "/api/login"
	MePath     = "/api/me"
	LogoutPath = "/api/logout"

	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

// ErrInvalidLoginResponse indicates a 2xx login reply missing either token.
var ErrInvalidLoginResponse = errors.New("login response is missing tokens")

// =============================================================================
// REQUEST AND RESPONSE TYPES
// =============================================================================

// SignupRequest is the sign-up form.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"-"`
}

// Validate checks the form locally. It returns nil or ValidationErrors.
func (r SignupRequest) Validate() error {
	var errs ValidationErrors
	if !usernamePattern.MatchString(r.Username) {
		errs = append(errs, "username must be 3-20 letters, digits or underscores")
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != strings.TrimSpace(r.Email) {
		errs = append(errs, "email address is not valid")
	}
	errs = append(errs, passwordProblems(r.Password)...)
	if r.Password != r.Confirm {
		errs = append(errs, "passwords do not match")
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func passwordProblems(pw string) []string {
	var problems []string
	if len([]rune(pw)) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		problems = append(problems, "password must contain upper-case, lower-case and a digit")
	}
	return problems
}

// Profile is the signed-in user as reported by the backend.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName returns "First Last", falling back to the username.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Username
	}
	return name
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Username     string `json:"username"`
	Email        string `json:"email"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// Accounts signs users up, in and out.
type Accounts struct {
	baseURL string
	store   *session.Store
	authed  *http.Client
	plain   *http.Client
	log     *zap.Logger
}

// NewAccounts creates an account client. authed is the guarded client used
// for calls that need the current session.
func NewAccounts(baseURL string, store *session.Store, authed *http.Client) *Accounts {
	if authed == nil {
		authed = &http.Client{Timeout: api.DefaultTimeout}
	}
	return &Accounts{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		store:   store,
		authed:  authed,
		plain:   &http.Client{Timeout: authed.Timeout},
		log:     zap.NewNop(),
	}
}

// WithPlainTransport sets the transport for calls made before a session
// exists (sign-up, sign-in).
func (a *Accounts) WithPlainTransport(rt http.RoundTripper) *Accounts {
	a.plain = &http.Client{Transport: rt, Timeout: a.authed.Timeout}
	return a
}

// WithLogger sets the logger.
func (a *Accounts) WithLogger(l *zap.Logger) *Accounts {
	a.log = logging.OrNop(l).Named("accounts")
	return a
}

func (a *Accounts) call(hc *http.Client, req *http.Request, out any) error {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	a.log.Debug("request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if err := api.CheckResponse(resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, api.MaxResponseSize))
		return nil
	}
	body, err := api.ReadBody(resp)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Signup validates the form and registers the account. It does not sign in.
func (a *Accounts) Signup(ctx context.Context, r SignupRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+SignupPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := a.call(a.plain, req, nil); err != nil {
		return err
	}
	a.log.Info("account created", zap.String("username", r.Username))
	return nil
}

// Login exchanges credentials for a token pair and stores the session.
func (a *Accounts) Login(ctx context.Context, username, password string) (session.Session, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return session.Session{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var lr loginResponse
	if err := a.call(a.plain, req, &lr); err != nil {
		return session.Session{}, err
	}
	if lr.AccessToken == "" || lr.RefreshToken == "" {
		return session.Session{}, ErrInvalidLoginResponse
	}

	email, name := lr.Email, lr.Username
	if email == "" {
		p, err := a.profile(ctx, a.plain, lr.AccessToken)
		if err != nil {
			return session.Session{}, fmt.Errorf("failed to load profile: %w", err)
		}
		email = p.Email
		if name == "" {
			name = p.Username
		}
	}
	if name == "" {
		name = username
	}

	if err := a.store.Login(lr.AccessToken, lr.RefreshToken, email, name); err != nil {
		return session.Session{}, err
	}
	return a.store.Current(), nil
}

// Me returns the signed-in user's profile.
func (a *Accounts) Me(ctx context.Context) (Profile, error) {
	return a.profile(ctx, a.authed, "")
}

func (a *Accounts) profile(ctx context.Context, hc *http.Client, bearer string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+MePath, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	var p Profile
	if err := a.call(hc, req, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Logout tells the backend, ignoring its answer, and always clears the
// local session.
func (a *Accounts) Logout(ctx context.Context) error {
	if a.store.IsAuthenticated() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+LogoutPath, nil)
		if err == nil {
			if err := a.call(a.authed, req, nil); err != nil {
				a.log.Debug("backend logout failed", zap.Error(err))
			}
		}
	}
	return a.store.Logout()
}
