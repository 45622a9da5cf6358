// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/parley/internal/chat"
	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/ui/styles"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// markdownRenderer returns a glamour renderer for finished replies, or nil
// when replies should be streamed as plain text. Markdown is only rendered
// on a terminal so piped output stays clean.
func markdownRenderer(ui config.UIConfig, tty bool) func(string) string {
	if !ui.Markdown || !tty {
		return nil
	}

	style := glamour.WithAutoStyle()
	switch {
	case ui.NoColor:
		style = glamour.WithStandardStyle("notty")
	case ui.GlamourStyle != "" && ui.GlamourStyle != "auto":
		style = glamour.WithStandardStyle(ui.GlamourStyle)
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(TerminalWidth()-4))
	if err != nil {
		return nil
	}
	return func(content string) string {
		out, err := r.Render(content)
		if err != nil {
			return content
		}
		return out
	}
}

// =============================================================================
// REPLY PRINTER
// =============================================================================

// replyPrinter follows a chat session's events and writes the assistant's
// reply. Without a renderer the reply is streamed as it arrives; with one a
// progress line is shown and the finished reply is rendered once.
type replyPrinter struct {
	out    io.Writer
	theme  *styles.Theme
	render func(string) string

	active bool
	shown  string
}

func newReplyPrinter(out io.Writer, theme *styles.Theme, render func(string) string) *replyPrinter {
	return &replyPrinter{out: out, theme: theme, render: render}
}

func (p *replyPrinter) handle(ev chat.Event) {
	switch ev.Kind {
	case chat.EventMessage:
		if ev.Message.Role != model.RoleAssistant {
			return
		}
		if ev.Message.IsStreaming() {
			p.progress(ev.Message.Content)
		} else {
			p.finish(ev.Message.Content)
		}
	case chat.EventReset:
		p.abandon()
	}
}

func (p *replyPrinter) progress(content string) {
	if !p.active {
		p.active = true
		p.shown = ""
		fmt.Fprintln(p.out, p.theme.RoleLabel(model.RoleAssistant))
	}
	if p.render != nil {
		fmt.Fprintf(p.out, "\r\033[K%s", p.theme.Streaming.Render(
			fmt.Sprintf("typing... %d characters", utf8.RuneCountInString(content))))
		return
	}
	p.writeNew(content)
}

func (p *replyPrinter) finish(content string) {
	if !p.active {
		return
	}
	if p.render != nil {
		fmt.Fprint(p.out, "\r\033[K")
		fmt.Fprint(p.out, p.render(content))
	} else {
		p.writeNew(content)
		fmt.Fprintln(p.out)
	}
	p.active = false
	p.shown = ""
}

// abandon ends a reply that was dropped before any content arrived.
func (p *replyPrinter) abandon() {
	if !p.active {
		return
	}
	if p.render != nil {
		fmt.Fprint(p.out, "\r\033[K")
	} else if p.shown != "" {
		fmt.Fprintln(p.out)
	}
	p.active = false
	p.shown = ""
}

// writeNew writes the part of content not yet shown. The stream carries the
// whole reply so far, so content normally extends what was written.
func (p *replyPrinter) writeNew(content string) {
	if strings.HasPrefix(content, p.shown) {
		fmt.Fprint(p.out, content[len(p.shown):])
	} else {
		fmt.Fprint(p.out, "\n"+content)
	}
	p.shown = content
}

// printTranscript writes every message with its role label.
func printTranscript(w io.Writer, theme *styles.Theme, msgs []model.Message, render func(string) string) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, theme.Empty.Render("No messages yet."))
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(w, theme.RoleLabel(m.Role))
		content := m.Content
		if m.Role == model.RoleAssistant && render != nil {
			fmt.Fprint(w, render(content))
			continue
		}
		fmt.Fprintln(w, content)
		fmt.Fprintln(w)
	}
}
