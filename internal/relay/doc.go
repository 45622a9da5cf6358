// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package relay implements the file relay used for chat attachments.
//
// Endpoints:
//   - POST /api/insert-file - store the multipart field "file" in object storage
//   - GET  /health          - liveness and upload counters
//
// Uploads are spooled to a temporary file under the upload directory, handed
// to a Storage backend (Appwrite in production) and the temporary file is
// removed whatever the outcome. The response is
//
//	{"fileId": "...", "downloadUrl": "...", "fileName": "..."}
//
// or {"error": "..."} with status 400, 413, 429 or 500.
//
// Client uploads a local file to a running relay.
package relay
