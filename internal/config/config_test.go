// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load consults so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PARLEY_API_URL", "PARLEY_LIST_PATH", "PARLEY_ORIGIN", "PARLEY_SESSION_BACKEND",
		"PARLEY_SESSION_PATH", "PARLEY_SESSION_KEY", "PARLEY_RELAY_URL", "PARLEY_UPLOAD_DIR",
		"APPWRITE_ENDPOINT", "APPWRITE_PROJECT_ID", "APPWRITE_API_KEY", "APPWRITE_BUCKET_ID",
		"PARLEY_LOG_LEVEL", "PARLEY_LOG_FILE", "PARLEY_RELAY_ADDR", "PORT",
		"PARLEY_SESSION_TTL", "PARLEY_MARKDOWN", "NO_COLOR",
	} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, "/api/newwww", cfg.API.ListPath)
	assert.Equal(t, DefaultSessionTTL, cfg.Session.TTL.Duration)
	assert.Equal(t, "file", cfg.Session.Backend)
	assert.NotEmpty(t, cfg.Session.Path)
}

func TestLoad_TOMLAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "https://chat.example.com/"
timeout = "5s"

[session]
backend = "SQLite"
ttl = "48h"
`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APPWRITE_BUCKET_ID=bucket-from-dotenv\n"), 0600))
	t.Setenv("PARLEY_ORIGIN", "https://web.example.com")
	t.Cleanup(func() { os.Unsetenv("APPWRITE_BUCKET_ID") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, "sqlite", cfg.Session.Backend)
	assert.Equal(t, "session.db", filepath.Base(cfg.Session.Path))
	assert.Equal(t, 48*time.Hour, cfg.Session.TTL.Duration)
	assert.Equal(t, "https://web.example.com", cfg.API.Origin)
	assert.Equal(t, "bucket-from-dotenv", cfg.Relay.Appwrite.BucketID)
}

func TestLoad_UnknownKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\nbase_urll = \"x\"\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_urll")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	cfg.API.BaseURL = "ftp://nope"
	cfg.Session.Backend = "redis"
	cfg.Relay.MaxUploadMB = 0

	err := cfg.Validate()
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["api.base_url"])
	assert.True(t, fields["session.backend"])
	assert.True(t, fields["relay.max_upload_mb"])
}

func TestRelayReady(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.RelayReady())

	cfg.Relay.Appwrite.ProjectID = "p"
	cfg.Relay.Appwrite.BucketID = "b"
	cfg.Relay.Appwrite.APIKey = "k"
	assert.NoError(t, cfg.RelayReady())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.API.BaseURL = "https://saved.example.com"
	cfg.Session.TTL = Duration{72 * time.Hour}
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://saved.example.com", loaded.API.BaseURL)
	assert.Equal(t, 72*time.Hour, loaded.Session.TTL.Duration)
}
