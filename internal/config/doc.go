// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates parley configuration.
//
// Sources, lowest precedence first:
//   - built-in defaults (Default)
//   - ~/.parley/config.toml (or the path given with --config)
//   - .env files in the working directory and ~/.parley/.env
//   - PARLEY_* and APPWRITE_* environment variables
//
// # Key Types
//
//   - Config: the complete configuration tree
//   - Duration: a time.Duration that reads and writes "15m" style strings
//   - ValidateErrors: every validation failure found in one pass
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	client := api.NewClient(cfg.API.BaseURL, httpClient)
package config
