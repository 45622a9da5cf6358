// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: one transcript entry; assistant entries may be streaming
//   - Transcript: the ordered messages of the open conversation
//   - Conversation: a backend conversation with its summary and history
//   - BucketSet: conversations partitioned by recency
//
// # Usage
//
//	t := model.NewTranscript()
//	t.AppendUser("Hello")
//	t.BeginAssistant()
//	t.UpdateStreaming("Hel")
//	t.UpdateStreaming("Hello there")
//	t.FinalizeStreaming()
//
// Transcript is not safe for concurrent use; its owner serialises access.
package model
