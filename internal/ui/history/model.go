// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/parley/internal/directory"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
	"github.com/jeranaias/parley/internal/ui/styles"
)

const (
	tickInterval = 500 * time.Millisecond
	opTimeout    = 30 * time.Second
)

type mode int

const (
	modeBrowse mode = iota
	modeRename
	modeConfirmDelete
)

// entry is one selectable conversation.
type entry struct {
	conv   model.Conversation
	bucket model.Bucket
}

// Model is the bubbletea model of the browser.
type Model struct {
	dir    *directory.Directory
	center *notify.Center
	theme  *styles.Theme
	keys   KeyMap
	copy   func(string) error

	help    help.Model
	spinner spinner.Model
	input   textinput.Model

	entries []entry
	cursor  int
	mode    mode
	loading bool
	busy    bool

	chosen      string
	openDeleted bool
	width       int
	height      int
}

// Option configures a Model.
type Option func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(fn func(string) error) Option {
	return func(m *Model) { m.copy = fn }
}

// WithKeyMap replaces the default bindings.
func WithKeyMap(k KeyMap) Option {
	return func(m *Model) { m.keys = k }
}

// New creates the browser. center should be the notifier dir reports into.
func New(dir *directory.Directory, center *notify.Center, theme *styles.Theme, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Muted

	in := textinput.New()
	in.Prompt = "Rename: "
	in.CharLimit = 200
	in.PromptStyle = theme.Prompt

	m := Model{
		dir:     dir,
		center:  center,
		theme:   theme,
		keys:    DefaultKeyMap(),
		copy:    clipboard.WriteAll,
		help:    help.New(),
		spinner: sp,
		input:   in,
		loading: true,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if dir.Loaded() {
		m.setEntries(dir.Snapshot())
	}
	return m
}

// Chosen returns the conversation to open after the program exits, or "".
func (m Model) Chosen() string {
	return m.chosen
}

// OpenDeleted reports whether the conversation marked open was deleted.
func (m Model) OpenDeleted() bool {
	return m.openDeleted
}

// Selected returns the highlighted conversation.
func (m Model) Selected() (model.Conversation, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return model.Conversation{}, false
	}
	return m.entries[m.cursor].conv, true
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) loadCmd() tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		set, err := dir.List(ctx)
		return loadedMsg{set: set, err: err}
	}
}

func (m Model) createCmd() tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		id, err := dir.Create(ctx)
		return createdMsg{id: id, err: err}
	}
}

func (m Model) renameCmd(id, summary string) tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return renamedMsg{id: id, err: dir.RenameSummary(ctx, id, summary)}
	}
}

func (m Model) deleteCmd(id string) tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		res, err := dir.Delete(ctx, id)
		return deletedMsg{id: id, result: res, err: err}
	}
}

func (m Model) shareCmd(id string) tea.Cmd {
	dir, copyFn := m.dir, m.copy
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		link, err := dir.Share(ctx, id)
		if err != nil {
			return sharedMsg{err: err}
		}
		copied := copyFn != nil && copyFn(link) == nil
		return sharedMsg{url: link, copied: copied}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// =============================================================================
// BUBBLETEA
// =============================================================================

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd(), tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.help.Width = msg.Width
		m.input.Width = max(msg.Width-12, 10)
		return m, nil

	case tickMsg:
		m.center.Tick()
		return m, tick()

	case spinner.TickMsg:
		if !m.loading && !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.loading = false
		if msg.err == nil {
			m.setEntries(msg.set)
		}
		return m, nil

	case createdMsg:
		m.busy = false
		if msg.err != nil {
			return m, nil
		}
		m.chosen = msg.id
		return m, tea.Quit

	case renamedMsg:
		m.busy = false
		if msg.err == nil {
			m.setEntries(m.dir.Snapshot())
			m.center.Success("Conversation renamed")
		}
		return m, nil

	case deletedMsg:
		m.busy = false
		if msg.err == nil {
			if msg.result.WasOpen {
				m.openDeleted = true
			}
			m.setEntries(m.dir.Snapshot())
			m.center.Success("Conversation deleted")
		}
		return m, nil

	case sharedMsg:
		m.busy = false
		switch {
		case msg.err != nil:
		case msg.copied:
			m.center.Success("Share link copied: " + msg.url)
		default:
			m.center.Status("Share link: " + msg.url)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeRename:
			return m.updateRename(msg)
		case modeConfirmDelete:
			return m.updateConfirm(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.move(-1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.move(1)
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = max(len(m.entries)-1, 0)
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, tea.Batch(m.loadCmd(), m.spinner.Tick)
	}

	// One directory operation at a time.
	if m.busy {
		return m, nil
	}
	if key.Matches(msg, m.keys.New) {
		m.busy = true
		return m, tea.Batch(m.createCmd(), m.spinner.Tick)
	}

	conv, ok := m.Selected()
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Open):
		m.chosen = conv.ID
		return m, tea.Quit
	case key.Matches(msg, m.keys.Rename):
		m.mode = modeRename
		m.input.SetValue(conv.Summary)
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Delete):
		m.mode = modeConfirmDelete
	case key.Matches(msg, m.keys.Share):
		m.busy = true
		return m, tea.Batch(m.shareCmd(conv.ID), m.spinner.Tick)
	}
	return m, nil
}

func (m Model) updateRename(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeBrowse
		m.input.Blur()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		m.mode = modeBrowse
		m.input.Blur()
		conv, ok := m.Selected()
		if !ok {
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.renameCmd(conv.ID, m.input.Value()), m.spinner.Tick)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.mode = modeBrowse
	if !key.Matches(msg, m.keys.Confirm) {
		return m, nil
	}
	conv, ok := m.Selected()
	if !ok {
		return m, nil
	}
	m.busy = true
	return m, tea.Batch(m.deleteCmd(conv.ID), m.spinner.Tick)
}

// =============================================================================
// HELPERS
// =============================================================================

func (m *Model) move(delta int) {
	if len(m.entries) == 0 {
		m.cursor = 0
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.entries)-1)
}

// setEntries flattens set and keeps the cursor on the same conversation
// when it still exists.
func (m *Model) setEntries(set model.BucketSet) {
	var selected string
	if conv, ok := m.Selected(); ok {
		selected = conv.ID
	}

	m.entries = make([]entry, 0, set.Total())
	for _, b := range model.Buckets {
		for _, c := range set.Get(b) {
			m.entries = append(m.entries, entry{conv: c, bucket: b})
		}
	}

	for i, e := range m.entries {
		if e.conv.ID == selected {
			m.cursor = i
			return
		}
	}
	m.move(0)
}

func (m Model) status() string {
	switch {
	case m.loading:
		return m.spinner.View() + " Loading conversations..."
	case m.busy:
		return m.spinner.View() + " Working..."
	}
	return fmt.Sprintf("%d conversations", len(m.entries))
}
