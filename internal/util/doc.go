// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across parley.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file replacement with fsync
//   - TruncateDisplay: display-width aware truncation with ellipsis
//   - NormalizeText: NFC normalisation and whitespace trimming
//
// # Usage
//
//	label := util.TruncateDisplay(conv.Summary, 30)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
