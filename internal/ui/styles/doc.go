// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling shared by parley's terminal
// front ends.
//
// Colors are lipgloss.AdaptiveColor values so they follow the terminal's
// light or dark background. Status output always carries an ASCII indicator
// ("[OK]", "[X]", "[!]", "[i]") next to the color, so meaning survives
// monochrome terminals and color blindness.
//
// A Theme is built once per process with NewTheme and passed to the views.
// NewTheme(true) produces a theme with every color stripped, used for
// --no-color and when output is not a terminal.
package styles
