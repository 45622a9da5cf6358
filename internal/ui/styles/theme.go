// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/parley/internal/model"
	"github.com/jeranaias/parley/internal/notify"
)

// Theme holds the styles used by the history browser and the chat REPL.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	NoColor      bool
	ColorProfile termenv.Profile

	Width  int
	Height int

	// Chrome
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Border   lipgloss.Style
	Help     lipgloss.Style
	Muted    lipgloss.Style
	Prompt   lipgloss.Style

	// History list
	BucketHeader lipgloss.Style
	Item         lipgloss.Style
	ItemSelected lipgloss.Style
	ItemOpen     lipgloss.Style
	Empty        lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Streaming      lipgloss.Style

	// Status
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
	LinkStyle    lipgloss.Style

	toast map[notify.Kind]lipgloss.Style
}

// NewTheme detects the terminal and builds every style. noColor strips colors.
func NewTheme(noColor bool) *Theme {
	profile := termenv.EnvColorProfile()
	if noColor {
		profile = termenv.Ascii
	}
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		NoColor:      profile == termenv.Ascii,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	r := lipgloss.NewRenderer(os.Stdout)
	r.SetColorProfile(t.ColorProfile)
	r.SetHasDarkBackground(t.IsDark)
	s := r.NewStyle

	t.Title = s().Bold(true).Foreground(Cyan)
	t.Subtitle = s().Foreground(TextSecondary).Italic(true)
	t.Border = s().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(Purple).Padding(0, 1)
	t.Help = s().Foreground(TextMuted)
	t.Muted = s().Foreground(TextMuted)
	t.Prompt = s().Bold(true).Foreground(Cyan)

	t.BucketHeader = s().Bold(true).Foreground(Purple).MarginTop(1)
	t.Item = s().Foreground(TextPrimary).PaddingLeft(2)
	t.ItemSelected = s().Bold(true).Foreground(TextPrimary).Background(SelectionBg).PaddingLeft(1).
		Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(Cyan)
	t.ItemOpen = s().Foreground(Emerald).PaddingLeft(2)
	t.Empty = s().Foreground(TextMuted).Italic(true).PaddingLeft(2)

	t.UserLabel = s().Bold(true).Foreground(Cyan)
	t.AssistantLabel = s().Bold(true).Foreground(Purple)
	t.Streaming = s().Foreground(TextSecondary)

	t.SuccessStyle = s().Bold(true).Foreground(SuccessHighContrast)
	t.ErrorStyle = s().Bold(true).Foreground(ErrorHighContrast)
	t.WarningStyle = s().Bold(true).Foreground(WarningHighContrast)
	t.InfoStyle = s().Bold(true).Foreground(InfoHighContrast)
	t.LinkStyle = s().Foreground(LinkColor).Underline(true)

	toast := s().Padding(0, 1).Border(lipgloss.RoundedBorder())
	t.toast = map[notify.Kind]lipgloss.Style{
		notify.KindStatus:  toast.BorderForeground(Cyan).Foreground(Cyan),
		notify.KindError:   toast.BorderForeground(Rose).Foreground(Rose),
		notify.KindWarning: toast.BorderForeground(Amber).Foreground(Amber),
		notify.KindSuccess: toast.BorderForeground(Emerald).Foreground(Emerald),
	}
}

// SetSize records the terminal size.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// RoleLabel renders the speaker heading of a message.
func (t *Theme) RoleLabel(role model.Role) string {
	if role == model.RoleUser {
		return t.UserLabel.Render(role.DisplayName())
	}
	return t.AssistantLabel.Render(role.DisplayName())
}

// Toast renders one notification.
func (t *Theme) Toast(n notify.Notification) string {
	style, ok := t.toast[n.Kind]
	if !ok {
		style = t.toast[notify.KindStatus]
	}
	return style.Render(indicator(n.Kind) + " " + n.Message)
}

// Status renders msg with the indicator and color of kind.
func (t *Theme) Status(kind notify.Kind, msg string) string {
	var style lipgloss.Style
	switch kind {
	case notify.KindError:
		style = t.ErrorStyle
	case notify.KindWarning:
		style = t.WarningStyle
	case notify.KindSuccess:
		style = t.SuccessStyle
	default:
		style = t.InfoStyle
	}
	return style.Render(indicator(kind) + " " + msg)
}

func indicator(kind notify.Kind) string {
	switch kind {
	case notify.KindError:
		return StatusIndicators.Error
	case notify.KindWarning:
		return StatusIndicators.Warning
	case notify.KindSuccess:
		return StatusIndicators.Success
	default:
		return StatusIndicators.Info
	}
}

// LayoutMode is the responsive layout chosen from the width.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// Layout returns the layout for the current width.
func (t *Theme) Layout() LayoutMode {
	switch {
	case t.Width < 60:
		return LayoutNarrow
	case t.Width < 100:
		return LayoutMedium
	default:
		return LayoutWide
	}
}
