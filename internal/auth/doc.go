// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth keeps outbound API calls authorised.
//
// Guard is an http.RoundTripper that checks the access token's exp claim
// before every request and exchanges an expired pair for a fresh one.
// Concurrent requests that find the same expired token share one refresh.
// A failed refresh logs the user out and fails the request with
// *SessionExpiredError.
//
// Accounts covers sign-up, sign-in, profile lookup and sign-out.
package auth
