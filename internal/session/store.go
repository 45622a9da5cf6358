// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/logging"
)

// DefaultTTL is the lifetime of every persisted entry.
const DefaultTTL = 7 * 24 * time.Hour

// ErrSignedOut is returned by UpdateTokens when there is no session to update.
var ErrSignedOut = errors.New("signed out")

// =============================================================================
// STORE
// =============================================================================

// Store owns the session. All methods are safe for concurrent use.
type Store struct {
	// writeMu serialises mutations so a read-modify-persist cannot
	// interleave with Logout.
	writeMu sync.Mutex

	mu      sync.RWMutex
	jar     Jar
	ttl     time.Duration
	now     func() time.Time
	log     *zap.Logger
	current Session

	subMu  sync.Mutex
	subs   map[int]func(Session)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logging.OrNop(l) }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over jar. Call Restore once at startup.
func NewStore(jar Jar, opts ...Option) *Store {
	s := &Store{
		jar:  jar,
		ttl:  DefaultTTL,
		now:  time.Now,
		log:  zap.NewNop(),
		subs: make(map[int]func(Session)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Jar returns the backing jar.
func (s *Store) Jar() Jar {
	return s.jar
}

// Current returns the in-memory session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAuthenticated reports whether both tokens are present.
func (s *Store) IsAuthenticated() bool {
	return s.Current().IsAuthenticated()
}

// Route applies Policy to the current session.
func (s *Store) Route(view View) (View, bool) {
	return Policy(view, s.Current())
}

// Subscribe registers fn for session changes and returns a function that
// removes it. fn runs outside the store's locks.
func (s *Store) Subscribe(fn func(Session)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) publish(sess Session) {
	s.subMu.Lock()
	fns := make([]func(Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(sess)
	}
}

// commit runs fn under the write lock and installs the session it returns.
// Subscribers are notified after the lock is released. When fn fails the
// session is left alone unless keep is false.
func (s *Store) commit(fn func(cur Session) (next Session, keep bool, err error)) (Session, error) {
	s.writeMu.Lock()
	next, keep, err := fn(s.Current())
	if err != nil && keep {
		s.writeMu.Unlock()
		return s.Current(), err
	}
	s.mu.Lock()
	changed := s.current != next
	s.current = next
	s.mu.Unlock()
	s.writeMu.Unlock()

	if changed {
		s.publish(next)
	}
	return next, err
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Restore reloads the session from the jar, ignoring expired entries. It is
// idempotent and safe to call again whenever the jar may have changed. On a
// jar error the in-memory session is left as it was.
func (s *Store) Restore() (Session, error) {
	sess, err := s.commit(func(cur Session) (Session, bool, error) {
		entries, err := s.jar.Load()
		if err != nil {
			return cur, true, err
		}
		now := s.now()
		values := make(map[string]string, len(Keys))
		for _, k := range Keys {
			if e, ok := entries[k]; ok && !e.Expired(now) {
				values[k] = e.Value
			}
		}
		return fromValues(values), false, nil
	})
	if err != nil {
		s.log.Warn("session restore failed", zap.String("path", s.jar.Path()), zap.Error(err))
		return sess, fmt.Errorf("failed to restore session: %w", err)
	}

	s.log.Debug("session restored", zap.Bool("authenticated", sess.IsAuthenticated()))
	return sess, nil
}

// Login persists all four fields with a fresh lifetime and makes them the
// current session.
func (s *Store) Login(accessToken, refreshToken, email, username string) error {
	_, err := s.commit(func(Session) (Session, bool, error) {
		sess := Session{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			Email:        email,
			Username:     username,
		}
		return sess, true, s.persist(sess)
	})
	if err != nil {
		return err
	}
	s.log.Info("signed in", zap.String("username", username))
	return nil
}

// UpdateTokens replaces both tokens after a refresh, keeping the identity.
// It returns ErrSignedOut, and changes nothing, when no refresh token is held.
func (s *Store) UpdateTokens(accessToken, refreshToken string) error {
	_, err := s.commit(func(cur Session) (Session, bool, error) {
		if cur.RefreshToken == "" {
			return cur, true, ErrSignedOut
		}
		cur.AccessToken = accessToken
		cur.RefreshToken = refreshToken
		return cur, true, s.persist(cur)
	})
	if err != nil {
		return err
	}
	s.log.Debug("tokens refreshed")
	return nil
}

// Logout clears the jar and the in-memory session. Calling it when already
// signed out is harmless. The in-memory session is cleared even when the jar
// cannot be.
func (s *Store) Logout() error {
	_, err := s.commit(func(Session) (Session, bool, error) {
		return Session{}, false, s.jar.Clear()
	})
	if err != nil {
		s.log.Warn("session clear failed", zap.Error(err))
		return fmt.Errorf("failed to clear session: %w", err)
	}
	s.log.Info("signed out")
	return nil
}

func (s *Store) persist(sess Session) error {
	expires := s.now().Add(s.ttl)
	entries := make(map[string]Entry, len(Keys))
	for k, v := range sess.values() {
		entries[k] = Entry{Value: v, ExpiresAt: expires}
	}
	if err := s.jar.Save(entries); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}
