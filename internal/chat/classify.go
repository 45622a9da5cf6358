// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/parley/internal/api"
	"github.com/jeranaias/parley/internal/auth"
)

// Backend detail strings with dedicated handling.
const (
	detailNotFound         = "404: Chat session not found"
	detailNotAuthenticated = "Not authenticated"
)

// MsgSessionExpired is shown when the backend rejects the session.
const MsgSessionExpired = "Session has expired. Please login again."

// Kind groups stream failures by what the caller must do.
type Kind int

const (
	// KindGeneric is shown and otherwise ignored.
	KindGeneric Kind = iota

	// KindNotFound means the conversation no longer exists.
	KindNotFound

	// KindAuth ends the session; the caller navigates to sign-in.
	KindAuth
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	default:
		return "generic"
	}
}

// Outcome is the classified form of a stream failure.
type Outcome struct {
	Kind    Kind
	Message string
}

// SignIn reports whether the caller must send the user to sign-in.
func (o Outcome) SignIn() bool {
	return o.Kind == KindAuth
}

// Classify turns a stream failure for conversationID into a user message.
// Response bodies are inspected as JSON when possible; transport errors
// surface their own text.
func Classify(conversationID string, err error) Outcome {
	if err == nil {
		return Outcome{}
	}
	if errors.Is(err, auth.ErrSessionExpired) {
		return Outcome{Kind: KindAuth, Message: MsgSessionExpired}
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return classifyBody(conversationID, apiErr.Body)
	}
	return Outcome{Kind: KindGeneric, Message: err.Error()}
}

func classifyBody(conversationID string, body []byte) Outcome {
	raw := strings.TrimSpace(string(body))

	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Outcome{Message: "Error parsing response: " + raw}
	}
	// Non-object JSON has no fields and ends up as an unknown format.
	payload, _ := parsed.(map[string]any)

	if detail, ok := payload["detail"].(string); ok {
		switch detail {
		case detailNotFound:
			return Outcome{
				Kind:    KindNotFound,
				Message: fmt.Sprintf("Chat %s has not been found. Please create a new chat and continue", conversationID),
			}
		case detailNotAuthenticated:
			return Outcome{Kind: KindAuth, Message: MsgSessionExpired}
		}
	}

	switch {
	case truthy(payload["detail"]):
		return Outcome{Message: "Error: " + text(payload["detail"])}
	case truthy(payload["errors"]):
		return Outcome{Message: "Validation Errors: " + joinList(payload["errors"])}
	case truthy(payload["message"]):
		return Outcome{Message: "Message: " + text(payload["message"])}
	case truthy(payload["error"]):
		return Outcome{Message: "Error: " + text(payload["error"])}
	}
	return Outcome{Message: "Unknown error format: " + raw}
}

// truthy treats missing, null, false, zero, "" and empty collections as absent.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}

// text renders a JSON value for display; strings are shown bare.
func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func joinList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return text(v)
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, text(item))
	}
	return strings.Join(parts, ", ")
}
