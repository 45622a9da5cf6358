// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation transcript to a file.
//
// # Supported Formats
//
//   - JSON: the full document, machine-readable
//   - YAML: the same document for people who prefer it
//   - Markdown: YAML front matter followed by one section per message
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", nil)
//	path, err := export.ToFile(conv, exp, &export.Options{OutputDir: "."})
package export
