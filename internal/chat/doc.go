// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs one open conversation: loading its history, streaming
// replies into the transcript, stopping, replaying edited turns and turning
// backend failures into user-facing messages.
//
// State machine:
//
//	Idle -> Loading -> Ready <-> Streaming
//	any  -> Closed
//
// The reply stream is a text/plain body that grows one reply. Every chunk
// updates the same assistant message in place.
package chat
