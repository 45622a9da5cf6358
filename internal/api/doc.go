// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the conversation backend.
//
// The client does not know about tokens. Authorisation is added by the
// *http.Client it is given, normally one whose transport is an auth.Guard.
//
// Endpoints:
//
//	GET    {list_path}                        grouped conversation list
//	POST   /api/conversation/create           new conversation id
//	PATCH  /api/conversations/summary/edit    rename
//	DELETE /api/conversations/{id}/delete
//	POST   /api/conversations/{id}/share
//	POST   /api/generate/stream               text/plain reply stream
package api
