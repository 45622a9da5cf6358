// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package notify holds transient, non-blocking user notifications.
//
// Services raise notifications through the Notifier interface and move on;
// front ends subscribe to a Center and render whatever is still live. Nothing
// ever waits for a notification to be acknowledged.
package notify

import (
	"sync"
	"time"
)

// =============================================================================
// KINDS
// =============================================================================

// Kind classifies a notification.
type Kind int

const (
	KindStatus Kind = iota
	KindError
	KindWarning
	KindSuccess
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindError:
		return "error"
	case KindWarning:
		return "warning"
	case KindSuccess:
		return "success"
	default:
		return "status"
	}
}

// Durations before a notification expires. Errors stay longer so they can be read.
const (
	StatusDuration  = 4 * time.Second
	WarningDuration = 6 * time.Second
	ErrorDuration   = 8 * time.Second
)

// MaxVisible is how many notifications a Center keeps.
const MaxVisible = 5

func durationFor(k Kind) time.Duration {
	switch k {
	case KindError:
		return ErrorDuration
	case KindWarning:
		return WarningDuration
	default:
		return StatusDuration
	}
}

// =============================================================================
// NOTIFICATION
// =============================================================================

// Notification is one transient message.
type Notification struct {
	ID        int
	Kind      Kind
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
}

// Expired reports whether n should no longer be shown at now.
func (n Notification) Expired(now time.Time) bool {
	return now.Sub(n.CreatedAt) >= n.Duration
}

// Notifier is what services depend on.
type Notifier interface {
	Error(msg string)
	Warn(msg string)
	Status(msg string)
	Success(msg string)
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Error(string)   {}
func (discard) Warn(string)    {}
func (discard) Status(string)  {}
func (discard) Success(string) {}

// =============================================================================
// CENTER
// =============================================================================

// Center keeps the newest notifications and fans them out to subscribers.
type Center struct {
	mu     sync.Mutex
	items  []Notification
	nextID int
	subs   []func(Notification)
	now    func() time.Time
}

// NewCenter creates an empty Center.
func NewCenter() *Center {
	return &Center{nextID: 1, now: time.Now}
}

// Subscribe registers fn to be called for every new notification. fn runs on
// the goroutine that raised the notification, outside the Center's lock.
func (c *Center) Subscribe(fn func(Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Add records a notification and returns its ID.
func (c *Center) Add(kind Kind, msg string) int {
	c.mu.Lock()
	n := Notification{
		ID:        c.nextID,
		Kind:      kind,
		Message:   msg,
		CreatedAt: c.now(),
		Duration:  durationFor(kind),
	}
	c.nextID++

	// Newest first, capped.
	c.items = append([]Notification{n}, c.items...)
	if len(c.items) > MaxVisible {
		c.items = c.items[:MaxVisible]
	}
	subs := append([]func(Notification){}, c.subs...)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
	return n.ID
}

func (c *Center) Error(msg string)   { c.Add(KindError, msg) }
func (c *Center) Warn(msg string)    { c.Add(KindWarning, msg) }
func (c *Center) Status(msg string)  { c.Add(KindStatus, msg) }
func (c *Center) Success(msg string) { c.Add(KindSuccess, msg) }

// Dismiss removes a notification early.
func (c *Center) Dismiss(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Tick drops expired notifications and returns the live ones, newest first.
func (c *Center) Tick() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	live := c.items[:0]
	for _, n := range c.items {
		if !n.Expired(now) {
			live = append(live, n)
		}
	}
	c.items = live
	return append([]Notification(nil), live...)
}

// Active returns a copy of the current notifications without expiring any.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

// Clear removes every notification.
func (c *Center) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder is a Notifier that remembers everything, for tests and for
// front ends that print notifications as they arrive.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) add(k Kind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{ID: len(r.items) + 1, Kind: k, Message: msg, CreatedAt: time.Now()})
}

func (r *Recorder) Error(msg string)   { r.add(KindError, msg) }
func (r *Recorder) Warn(msg string)    { r.add(KindWarning, msg) }
func (r *Recorder) Status(msg string)  { r.add(KindStatus, msg) }
func (r *Recorder) Success(msg string) { r.add(KindSuccess, msg) }

// All returns the recorded notifications in order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Messages returns the recorded messages of kind k.
func (r *Recorder) Messages(k Kind) []string {
	var out []string
	for _, n := range r.All() {
		if n.Kind == k {
			out = append(out, n.Message)
		}
	}
	return out
}
