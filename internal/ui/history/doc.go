// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history is the conversation browser behind `parley history`.
//
// The model lists conversations grouped by recency bucket and drives the
// directory service: open, create, rename, delete and share. Every call runs
// as a tea.Cmd so the view stays responsive; failures arrive as toasts from
// the notification center the directory reports into.
//
// When the user opens or creates a conversation the program quits and
// Chosen reports its id.
package history
