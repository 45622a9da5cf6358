// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsk_SignsInThenSendsQuestion(t *testing.T) {
	h := newHarness(t)

	res := h.run("alice\nSecret123\n", "ask", "q")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Sign in to continue")
	assert.Contains(t, res.out, "Signed in as alice")
	assert.Contains(t, res.out, "Conversation c3")
	assert.Contains(t, res.out, "reply to q")

	assert.True(t, h.backend.seen("POST /api/login"))
	assert.True(t, h.backend.seen("POST /api/conversation/create"))

	calls := h.backend.streamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c3", calls[0].ConversationID)
	assert.Equal(t, []map[string]string{{"role": "user", "content": "q"}}, calls[0].Messages)
}

func TestAsk_SignedInSkipsPrompt(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("", "ask", "what", "now?")
	require.NoError(t, res.err)
	assert.NotContains(t, res.out, "Sign in to continue")

	calls := h.backend.streamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "what now?", calls[0].Messages[0]["content"])
}

func TestAsk_FailedSignInSendsNothing(t *testing.T) {
	h := newHarness(t)

	res := h.run("alice\nwrong\n", "ask", "q")
	require.Error(t, res.err)
	assert.False(t, h.backend.seen("POST /api/conversation/create"))
	assert.Empty(t, h.backend.streamCalls())
}

func TestChat_ContinuesConversation(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("And in summer?\n/quit\n", "chat", "c1")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "Lisbon is lovely in spring.")
	assert.Contains(t, res.out, "reply to And in summer?")

	calls := h.backend.streamCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ConversationID)
	assert.Equal(t, []map[string]string{
		{"role": "user", "content": "Where should we go?"},
		{"role": "assistant", "content": "Lisbon is lovely in spring."},
		{"role": "user", "content": "And in summer?"},
	}, calls[0].Messages)
}

func TestChat_NotAuthenticatedEndsChatAndSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.streamStatus = http.StatusUnauthorized
	h.backend.streamError = `{"detail":"Not authenticated"}`

	res := h.run("hello\nnever read\n", "chat", "c1")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrNotSignedIn)
	assert.Equal(t, 1, strings.Count(res.errOut, "Session has expired. Please login again."))
	assert.Len(t, h.backend.streamCalls(), 1)

	data, err := os.ReadFile(filepath.Join(h.dir, "session.json"))
	if err == nil {
		assert.NotContains(t, string(data), "refresh-1")
	}
	res = h.run("", "whoami")
	assert.ErrorIs(t, res.err, ErrNotSignedIn)
}

func TestChat_NotFoundEndsChat(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.backend.streamStatus = http.StatusNotFound
	h.backend.streamError = `{"detail":"404: Chat session not found"}`

	res := h.run("hello\n", "chat", "c1")
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, errReported)
	assert.Equal(t, 1, strings.Count(res.errOut, "Chat c1 has not been found. Please create a new chat and continue"))

	res = h.run("", "whoami")
	require.NoError(t, res.err, "a missing conversation keeps the session")
}

func TestChat_EditAndNew(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("first\n/edit\nsecond\n/new\n/quit\n", "chat", "c2")
	require.NoError(t, res.err)

	calls := h.backend.streamCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []map[string]string{{"role": "user", "content": "first"}}, calls[0].Messages)
	assert.Equal(t, []map[string]string{{"role": "user", "content": "second"}}, calls[1].Messages,
		"the edited question replaces the original and its reply")

	assert.Contains(t, res.out, "reply to second")
	assert.True(t, h.backend.seen("POST /api/conversation/create"))
	assert.Contains(t, res.out, "Conversation c3")
}

func TestChat_SlashCommands(t *testing.T) {
	h := newHarness(t)
	h.login()

	res := h.run("/help\n/bogus\n/edit\n\n/share\n/history\nexit\n", "chat", "c1")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "/regenerate, /r")
	assert.Contains(t, res.errOut, "unknown command /bogus")
	assert.Contains(t, res.out, "Unchanged.")
	assert.Contains(t, res.out, "https://chat.example.com/share/c1")
	assert.Empty(t, h.backend.streamCalls())
}

func TestStopOnSignal_ReturnsWhenDone(t *testing.T) {
	r := &repl{}
	sig := make(chan os.Signal, 1)
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		r.stopOnSignal(sig, done)
		close(exited)
	}()

	sig <- os.Interrupt // nothing streaming; ignored
	close(done)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("signal loop did not exit")
	}
}
