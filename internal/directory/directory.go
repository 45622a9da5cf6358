// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package directory

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/util"
)

// ErrEmptySummary is returned by RenameSummary for a blank summary.
var ErrEmptySummary = errors.New("summary cannot be empty")

// Backend is the slice of the API client the directory uses.
type Backend interface {
	ListConversations(ctx context.Context) (model.BucketSet, error)
	CreateConversation(ctx context.Context) (string, error)
	EditSummary(ctx context.Context, id, summary string) error
	DeleteConversation(ctx context.Context, id string) error
	ShareConversation(ctx context.Context, id string) error
}

// DeleteResult reports what the caller must do after a delete.
type DeleteResult struct {
	// WasOpen is true when the deleted conversation was the open one; the
	// caller should navigate away from it.
	WasOpen bool
}

// Directory is the conversation cache. It is safe for concurrent use.
type Directory struct {
	backend  Backend
	notifier notify.Notifier
	origin   string
	log      *zap.Logger

	mu     sync.RWMutex
	cache  model.BucketSet
	loaded bool
	open   string

	subMu  sync.Mutex
	subs   map[int]func(model.BucketSet)
	nextID int
}

// Option configures a Directory.
type Option func(*Directory)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Directory) { d.log = logging.OrNop(l).Named("directory") }
}

// New creates a directory. origin is the web origin share links point at.
func New(backend Backend, notifier notify.Notifier, origin string, opts ...Option) *Directory {
	if notifier == nil {
		notifier = notify.Discard
	}
	d := &Directory{
		backend:  backend,
		notifier: notifier,
		origin:   strings.TrimSuffix(origin, "/"),
		log:      zap.NewNop(),
		subs:     make(map[int]func(model.BucketSet)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// =============================================================================
// READ SIDE
// =============================================================================

// Snapshot returns a deep copy of the cache.
func (d *Directory) Snapshot() model.BucketSet {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cache.Clone()
}

// Loaded reports whether at least one List has succeeded.
func (d *Directory) Loaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Find looks id up in every bucket of the cache.
func (d *Directory) Find(id string) (model.Conversation, model.Bucket, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, b, ok := d.cache.Find(id)
	if !ok {
		return model.Conversation{}, "", false
	}
	return c.Clone(), b, true
}

// SetOpen records which conversation the user is viewing.
func (d *Directory) SetOpen(id string) {
	d.mu.Lock()
	d.open = id
	d.mu.Unlock()
}

// OpenID returns the conversation set with SetOpen.
func (d *Directory) OpenID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.open
}

// Subscribe registers fn to receive every new snapshot. The returned function
// removes it.
func (d *Directory) Subscribe(fn func(model.BucketSet)) func() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	return func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		delete(d.subs, id)
	}
}

func (d *Directory) publish(set model.BucketSet) {
	d.subMu.Lock()
	fns := make([]func(model.BucketSet), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()

	for _, fn := range fns {
		fn(set.Clone())
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// fail reports err once and returns it wrapped with op.
func (d *Directory) fail(op string, err error) error {
	d.log.Warn("directory operation failed", zap.String("op", op), zap.Error(err))
	d.notifier.Error(fmt.Sprintf("Failed to %s: %v", op, err))
	return fmt.Errorf("failed to %s: %w", op, err)
}

// List fetches every conversation and replaces the cache wholesale.
func (d *Directory) List(ctx context.Context) (model.BucketSet, error) {
	set, err := d.backend.ListConversations(ctx)
	if err != nil {
		return d.Snapshot(), d.fail("load conversations", err)
	}

	d.mu.Lock()
	d.cache = set.Clone()
	d.loaded = true
	d.mu.Unlock()

	d.log.Debug("conversations loaded", zap.Int("count", set.Total()))
	d.publish(set)
	return set, nil
}

// refetch runs List after a successful mutation. Its failure is reported by
// List and does not undo the mutation.
func (d *Directory) refetch(ctx context.Context) {
	_, _ = d.List(ctx)
}

// Create asks the backend for a new conversation and returns its id.
func (d *Directory) Create(ctx context.Context) (string, error) {
	id, err := d.backend.CreateConversation(ctx)
	if err != nil {
		return "", d.fail("create conversation", err)
	}
	d.log.Info("conversation created", zap.String("id", id))
	d.refetch(ctx)
	return id, nil
}

// RenameSummary sets a conversation's summary. The summary is trimmed and
// NFC-normalised first; a blank one is rejected without a backend call.
func (d *Directory) RenameSummary(ctx context.Context, id, summary string) error {
	summary = util.NormalizeText(summary)
	if summary == "" {
		return d.fail("rename conversation", ErrEmptySummary)
	}
	if err := d.backend.EditSummary(ctx, id, summary); err != nil {
		return d.fail("rename conversation", err)
	}
	d.refetch(ctx)
	return nil
}

// Delete removes a conversation. When it was the open one the open marker is
// cleared and WasOpen is set.
func (d *Directory) Delete(ctx context.Context, id string) (DeleteResult, error) {
	if err := d.backend.DeleteConversation(ctx, id); err != nil {
		return DeleteResult{}, d.fail("delete conversation", err)
	}

	var res DeleteResult
	d.mu.Lock()
	if d.open != "" && d.open == id {
		res.WasOpen = true
		d.open = ""
	}
	d.mu.Unlock()

	d.log.Info("conversation deleted", zap.String("id", id), zap.Bool("was_open", res.WasOpen))
	d.refetch(ctx)
	return res, nil
}

// Share marks a conversation as shared and returns its public link. The
// cache is not touched.
func (d *Directory) Share(ctx context.Context, id string) (string, error) {
	if err := d.backend.ShareConversation(ctx, id); err != nil {
		return "", d.fail("share conversation", err)
	}
	return ShareURL(d.origin, id), nil
}

// ShareURL builds the public link for a conversation.
func ShareURL(origin, id string) string {
	return strings.TrimSuffix(origin, "/") + "/share/" + url.PathEscape(id)
}
