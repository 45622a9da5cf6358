// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole maps a backend role onto the two roles the client knows.
// Only "user" stays a user; "human", "ai", "system" and anything else are
// shown as the assistant.
func NormalizeRole(raw string) Role {
	if raw == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	if r == RoleUser {
		return "You"
	}
	return "Assistant"
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// streaming is true while the reply for the current turn is arriving.
	streaming bool
}

// WireMessage is the {role, content} pair sent to the completion endpoint.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with a locally generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// IsStreaming reports whether content is still arriving.
func (m *Message) IsStreaming() bool {
	return m.streaming
}

// SetContent replaces the content of a streaming message. The stream carries
// the whole reply so far, so each update supersedes the previous one.
// Finalized messages are left untouched.
func (m *Message) SetContent(content string) bool {
	if !m.streaming {
		return false
	}
	m.Content = content
	return true
}

// Finalize freezes the message for this turn.
func (m *Message) Finalize() {
	m.streaming = false
}

// Preview returns the first line of the content cut to maxWidth columns.
func (m *Message) Preview(maxWidth int) string {
	return util.TruncateDisplay(util.FirstLine(m.Content), maxWidth)
}

// Wire converts m for the completion request.
func (m *Message) Wire() WireMessage {
	return WireMessage{Role: m.Role.String(), Content: m.Content}
}
