// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.theme.Title.Render("parley"))
	b.WriteString(m.theme.Subtitle.Render("  conversations"))
	b.WriteString("\n")

	b.WriteString(m.renderList())
	b.WriteString("\n\n")

	switch m.mode {
	case modeRename:
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(m.theme.Help.Render("enter save • esc cancel"))
	case modeConfirmDelete:
		conv, _ := m.Selected()
		b.WriteString(m.theme.WarningStyle.Render(
			`Delete "` + conv.DisplaySummary() + `"? (y/N)`))
	default:
		b.WriteString(m.theme.Muted.Render(m.status()))
		b.WriteString("\n")
		b.WriteString(m.help.View(m.keys))
	}

	if toasts := m.renderToasts(); toasts != "" {
		b.WriteString("\n")
		b.WriteString(toasts)
	}
	return b.String()
}

// renderList draws each non-empty bucket under its heading.
func (m Model) renderList() string {
	if len(m.entries) == 0 {
		if m.loading {
			return ""
		}
		return m.theme.Empty.Render("No conversations yet. Press n to start one.")
	}

	width := model.MaxSummaryWidth
	if m.width > 0 {
		width = min(max(m.width-8, 10), 80)
	}
	open := m.dir.OpenID()

	var (
		lines   []string
		current model.Bucket
	)
	for i, e := range m.entries {
		if e.bucket != current {
			current = e.bucket
			lines = append(lines, m.theme.BucketHeader.Render(current.Title()))
		}

		label := util.TruncateDisplay(e.conv.DisplaySummary(), width)
		switch {
		case i == m.cursor:
			lines = append(lines, m.theme.ItemSelected.Render(label))
		case e.conv.ID == open:
			lines = append(lines, m.theme.ItemOpen.Render(label))
		default:
			lines = append(lines, m.theme.Item.Render(label))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderToasts() string {
	active := m.center.Active()
	if len(active) == 0 {
		return ""
	}
	rendered := make([]string, len(active))
	for i, n := range active {
		rendered[i] = m.theme.Toast(n)
	}
	return lipgloss.JoinVertical(lipgloss.Right, rendered...)
}
