// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"time"

	"github.com/jeranaias/parley/internal/directory"
	"github.com/jeranaias/parley/internal/model"
)

// loadedMsg carries the result of a list.
type loadedMsg struct {
	set model.BucketSet
	err error
}

// createdMsg carries the id of a new conversation.
type createdMsg struct {
	id  string
	err error
}

// renamedMsg reports a finished rename.
type renamedMsg struct {
	id  string
	err error
}

// deletedMsg reports a finished delete.
type deletedMsg struct {
	id     string
	result directory.DeleteResult
	err    error
}

// sharedMsg carries a share link.
type sharedMsg struct {
	url    string
	copied bool
	err    error
}

// tickMsg expires old toasts.
type tickMsg time.Time
