// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// streamCanceler holds the cancel function of the in-flight stream. Stop may
// be called from any goroutine while the stream is read on another.
type streamCanceler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (c *streamCanceler) set(fn context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancel = fn
}

// fire cancels the stream if one is registered and reports whether it did.
func (c *streamCanceler) fire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == nil {
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}
