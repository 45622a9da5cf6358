// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package directory caches the user's conversations grouped by age.
//
// Every mutation is one backend call followed by a full refetch; the cache
// is never patched locally. Failures raise a single error notification and
// leave the cache as it was.
package directory
