// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/parley/internal/directory"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/ui/styles"
)

type stored struct {
	id      string
	summary string
	bucket  model.Bucket
}

// memBackend is an ordered in-memory directory backend.
type memBackend struct {
	mu      sync.Mutex
	convs   []stored
	created int
	listErr error
}

func (b *memBackend) ListConversations(context.Context) (model.BucketSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return model.BucketSet{}, b.listErr
	}
	var set model.BucketSet
	for _, c := range b.convs {
		set.Add(c.bucket, model.Conversation{ID: c.id, Summary: c.summary})
	}
	return set, nil
}

func (b *memBackend) CreateConversation(context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created++
	id := "fresh"
	b.convs = append([]stored{{id: id, bucket: model.BucketToday}}, b.convs...)
	return id, nil
}

func (b *memBackend) EditSummary(_ context.Context, id, summary string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.convs {
		if b.convs[i].id == id {
			b.convs[i].summary = summary
			return nil
		}
	}
	return errors.New("404: Chat session not found")
}

func (b *memBackend) DeleteConversation(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.convs {
		if b.convs[i].id == id {
			b.convs = append(b.convs[:i], b.convs[i+1:]...)
			return nil
		}
	}
	return errors.New("404: Chat session not found")
}

func (b *memBackend) ShareConversation(context.Context, string) error {
	return nil
}

func (b *memBackend) summary(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.convs {
		if c.id == id {
			return c.summary
		}
	}
	return ""
}

type fixture struct {
	backend *memBackend
	dir     *directory.Directory
	center  *notify.Center
	copied  []string
	copyErr error
}

func newFixture(t *testing.T) (*fixture, Model) {
	t.Helper()
	f := &fixture{
		backend: &memBackend{convs: []stored{
			{id: "a", summary: "Alpha plans", bucket: model.BucketToday},
			{id: "b", summary: "Beta notes", bucket: model.BucketToday},
			{id: "c", summary: "Gamma ideas", bucket: model.BucketLast7Days},
		}},
		center: notify.NewCenter(),
	}
	f.dir = directory.New(f.backend, f.center, "https://chat.example")

	m := New(f.dir, f.center, styles.NewTheme(true), WithClipboard(func(s string) error {
		if f.copyErr != nil {
			return f.copyErr
		}
		f.copied = append(f.copied, s)
		return nil
	}))
	m = apply(t, m, m.loadCmd())
	return f, m
}

// apply runs cmd to completion, feeding every resulting message back into m.
// Timer and quit messages are dropped, and follow-up commands are not run.
func apply(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			m = apply(t, m, c)
		}
	case spinner.TickMsg, tickMsg, tea.QuitMsg, nil:
	default:
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(Model), c
	}
	return m, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func toastMessages(c *notify.Center) []string {
	var out []string
	for _, n := range c.Active() {
		out = append(out, n.Message)
	}
	return out
}

// =============================================================================
// TESTS
// =============================================================================

func TestListGroupsByBucket(t *testing.T) {
	_, m := newFixture(t)

	view := m.View()
	assert.Contains(t, view, "Today")
	assert.Contains(t, view, "Previous 7 days")
	assert.NotContains(t, view, "Yesterday", "empty buckets have no heading")
	assert.Less(t, strings.Index(view, "Alpha plans"), strings.Index(view, "Beta notes"))
	assert.Less(t, strings.Index(view, "Beta notes"), strings.Index(view, "Gamma ideas"))
	assert.Contains(t, view, "3 conversations")
}

func TestOpenSelected(t *testing.T) {
	_, m := newFixture(t)

	m, _ = press(t, m, "down", "j")
	conv, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "c", conv.ID)

	m, _ = press(t, m, "j")
	conv, _ = m.Selected()
	assert.Equal(t, "c", conv.ID, "cursor stops at the last entry")

	m, cmd := press(t, m, "enter")
	assert.Equal(t, "c", m.Chosen())
	assert.True(t, isQuit(cmd))
}

func TestNewConversationIsChosen(t *testing.T) {
	f, m := newFixture(t)

	m, cmd := press(t, m, "n")
	assert.True(t, m.busy)
	m = apply(t, m, cmd)

	assert.Equal(t, "fresh", m.Chosen())
	assert.Equal(t, 1, f.backend.created)
}

func TestRename(t *testing.T) {
	f, m := newFixture(t)

	m, _ = press(t, m, "j", "r")
	require.Equal(t, modeRename, m.mode)
	assert.Equal(t, "Beta notes", m.input.Value())

	m.input.SetValue("  Beta, revised  ")
	m, cmd := press(t, m, "enter")
	assert.Equal(t, modeBrowse, m.mode)
	m = apply(t, m, cmd)

	assert.Equal(t, "Beta, revised", f.backend.summary("b"))
	assert.Contains(t, m.View(), "Beta, revised")
	assert.Contains(t, toastMessages(f.center), "Conversation renamed")

	conv, _ := m.Selected()
	assert.Equal(t, "b", conv.ID, "selection follows the conversation")
}

func TestRenameCancelAndBlank(t *testing.T) {
	f, m := newFixture(t)

	m, _ = press(t, m, "r")
	m, cmd := press(t, m, "esc")
	assert.Equal(t, modeBrowse, m.mode)
	assert.Nil(t, cmd)
	assert.Equal(t, "Alpha plans", f.backend.summary("a"))

	m, _ = press(t, m, "r")
	m.input.SetValue("   ")
	m, cmd = press(t, m, "enter")
	m = apply(t, m, cmd)
	assert.Equal(t, "Alpha plans", f.backend.summary("a"))
	assert.Contains(t, toastMessages(f.center), "Failed to rename conversation: "+directory.ErrEmptySummary.Error())
	assert.False(t, m.busy)
}

func TestDelete(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		f, m := newFixture(t)
		f.dir.SetOpen("a")

		m, _ = press(t, m, "d")
		require.Equal(t, modeConfirmDelete, m.mode)
		assert.Contains(t, m.View(), `Delete "Alpha plans"? (y/N)`)

		m, cmd := press(t, m, "y")
		m = apply(t, m, cmd)

		assert.NotContains(t, m.View(), "Alpha plans")
		assert.True(t, m.OpenDeleted())
		assert.Contains(t, toastMessages(f.center), "Conversation deleted")
	})

	t.Run("declined", func(t *testing.T) {
		_, m := newFixture(t)

		m, _ = press(t, m, "d")
		m, cmd := press(t, m, "n")
		assert.Nil(t, cmd)
		assert.Equal(t, modeBrowse, m.mode)
		assert.Contains(t, m.View(), "Alpha plans")
	})
}

func TestShare(t *testing.T) {
	t.Run("copied", func(t *testing.T) {
		f, m := newFixture(t)

		m, cmd := press(t, m, "s")
		apply(t, m, cmd)

		assert.Equal(t, []string{"https://chat.example/share/a"}, f.copied)
		assert.Contains(t, toastMessages(f.center), "Share link copied: https://chat.example/share/a")
	})

	t.Run("clipboard unavailable", func(t *testing.T) {
		f, m := newFixture(t)
		f.copyErr = errors.New("no clipboard")

		m, cmd := press(t, m, "s")
		apply(t, m, cmd)

		assert.Contains(t, toastMessages(f.center), "Share link: https://chat.example/share/a")
	})
}

func TestBusyBlocksOperations(t *testing.T) {
	_, m := newFixture(t)
	m.busy = true

	_, cmd := press(t, m, "n")
	assert.Nil(t, cmd)
	_, cmd = press(t, m, "d")
	assert.Nil(t, cmd)
}

func TestLoadFailureShowsToast(t *testing.T) {
	f, m := newFixture(t)
	f.backend.mu.Lock()
	f.backend.listErr = errors.New("connection refused")
	f.backend.mu.Unlock()

	m, cmd := press(t, m, "R")
	assert.True(t, m.loading)
	m = apply(t, m, cmd)

	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "Failed to load conversations: connection refused")
	assert.Contains(t, m.View(), "Alpha plans", "the last good list stays visible")
}

func TestEmptyList(t *testing.T) {
	f, m := newFixture(t)
	f.backend.mu.Lock()
	f.backend.convs = nil
	f.backend.mu.Unlock()

	m = apply(t, m, m.loadCmd())
	assert.Contains(t, m.View(), "No conversations yet")
	_, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
	assert.Empty(t, m.Chosen())
}
