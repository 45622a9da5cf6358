// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/parley/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete parley configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Session SessionConfig `toml:"session"`
	Relay   RelayConfig   `toml:"relay"`
	UI      UIConfig      `toml:"ui"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig describes the chat backend.
type APIConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:8080
	BaseURL string `toml:"base_url"`
	// ListPath is the conversation list endpoint.
	ListPath string `toml:"list_path"`
	// Origin is the web frontend origin used to build share links.
	Origin string `toml:"origin"`
	// Timeout bounds every non-streaming request.
	Timeout Duration `toml:"timeout"`
}

// SessionConfig describes where credentials are persisted.
type SessionConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend"`
	// Path of the jar; empty selects ~/.parley/session.json or session.db.
	Path string `toml:"path"`
	// TTL is the lifetime of every persisted entry.
	TTL Duration `toml:"ttl"`
	// RefreshSkew refreshes access tokens this long before they expire.
	RefreshSkew Duration `toml:"refresh_skew"`
	// Passphrase seals jar values at rest. Prefer PARLEY_SESSION_KEY.
	Passphrase string `toml:"passphrase,omitempty"`
	// Watch follows jar changes made by other parley processes.
	Watch bool `toml:"watch"`
}

// RelayConfig configures the file relay server and its clients.
type RelayConfig struct {
	// Addr is the listen address of `parley relay serve`.
	Addr string `toml:"addr"`
	// URL is where `parley upload` sends files.
	URL string `toml:"url"`
	// UploadDir holds uploads while they are forwarded to storage.
	UploadDir string `toml:"upload_dir"`
	// MaxUploadMB caps the multipart body.
	MaxUploadMB int `toml:"max_upload_mb"`
	// RatePerMinute and Burst configure the per-IP token bucket.
	RatePerMinute int `toml:"rate_per_minute"`
	Burst         int `toml:"burst"`
	// AllowedOrigins may call the relay from a browser.
	AllowedOrigins []string       `toml:"allowed_origins"`
	Appwrite       AppwriteConfig `toml:"appwrite"`
}

// AppwriteConfig holds the object storage credentials.
type AppwriteConfig struct {
	Endpoint  string `toml:"endpoint"`
	ProjectID string `toml:"project_id"`
	APIKey    string `toml:"api_key,omitempty"`
	BucketID  string `toml:"bucket_id"`
}

// UIConfig controls terminal presentation.
type UIConfig struct {
	// Markdown renders finished replies with glamour.
	Markdown bool `toml:"markdown"`
	// GlamourStyle is "auto", "dark", "light" or "notty".
	GlamourStyle string `toml:"glamour_style"`
	// NoColor disables ANSI colors.
	NoColor bool `toml:"no_color"`
	// HistoryFile stores REPL input history.
	HistoryFile string `toml:"history_file"`
}

// LogConfig controls zap output.
type LogConfig struct {
	Level string `toml:"level"`
	// File receives logs; empty writes interactive commands' logs to ~/.parley/parley.log.
	File string `toml:"file"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration wraps time.Duration so TOML can carry values like "168h".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultSessionTTL matches the lifetime of the web client's auth cookies.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:  "http://localhost:8080",
			ListPath: "/api/newwww",
			Origin:   "http://localhost:3000",
			Timeout:  Duration{30 * time.Second},
		},
		Session: SessionConfig{
			Backend: "file",
			TTL:     Duration{DefaultSessionTTL},
			Watch:   true,
		},
		Relay: RelayConfig{
			Addr:           "127.0.0.1:3001",
			URL:            "http://localhost:3001",
			MaxUploadMB:    25,
			RatePerMinute:  60,
			Burst:          10,
			AllowedOrigins: []string{"http://localhost:3000"},
			Appwrite: AppwriteConfig{
				Endpoint: "https://cloud.appwrite.io/v1",
			},
		},
		UI: UIConfig{
			Markdown:     true,
			GlamourStyle: "auto",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// Dir returns ~/.parley.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".parley"), nil
}

// DefaultPath returns ~/.parley/config.toml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the configuration from path (or the default location when path is
// empty). A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	loadDotEnv(filepath.Dir(path))
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path into cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// loadDotEnv loads ./.env and <configDir>/.env. Variables already set in the
// environment win; missing files are ignored.
func loadDotEnv(configDir string) {
	for _, p := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// Save writes cfg as TOML to path with owner-only permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# parley configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	// SECURITY: the file may carry the Appwrite key and session passphrase.
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// ApplyEnvOverrides copies recognised environment variables into c.
func (c *Config) ApplyEnvOverrides() {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}

	setString(&c.API.BaseURL, "PARLEY_API_URL")
	setString(&c.API.ListPath, "PARLEY_LIST_PATH")
	setString(&c.API.Origin, "PARLEY_ORIGIN")
	setString(&c.Session.Backend, "PARLEY_SESSION_BACKEND")
	setString(&c.Session.Path, "PARLEY_SESSION_PATH")
	setString(&c.Session.Passphrase, "PARLEY_SESSION_KEY")
	setString(&c.Relay.URL, "PARLEY_RELAY_URL")
	setString(&c.Relay.UploadDir, "PARLEY_UPLOAD_DIR")
	setString(&c.Relay.Appwrite.Endpoint, "APPWRITE_ENDPOINT")
	setString(&c.Relay.Appwrite.ProjectID, "APPWRITE_PROJECT_ID")
	setString(&c.Relay.Appwrite.APIKey, "APPWRITE_API_KEY")
	setString(&c.Relay.Appwrite.BucketID, "APPWRITE_BUCKET_ID")
	setString(&c.Log.Level, "PARLEY_LOG_LEVEL")
	setString(&c.Log.File, "PARLEY_LOG_FILE")

	if addr := os.Getenv("PARLEY_RELAY_ADDR"); addr != "" {
		c.Relay.Addr = addr
	} else if port := os.Getenv("PORT"); port != "" {
		c.Relay.Addr = ":" + port
	}
	if v := os.Getenv("PARLEY_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.TTL = Duration{d}
		}
	}
	if v := os.Getenv("PARLEY_MARKDOWN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UI.Markdown = b
		}
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		c.UI.NoColor = true
	}
}

// SetDefaults fills empty fields that depend on the environment.
func (c *Config) SetDefaults() {
	c.API.BaseURL = strings.TrimSuffix(c.API.BaseURL, "/")
	c.API.Origin = strings.TrimSuffix(c.API.Origin, "/")
	c.Relay.URL = strings.TrimSuffix(c.Relay.URL, "/")
	c.Relay.Appwrite.Endpoint = strings.TrimSuffix(c.Relay.Appwrite.Endpoint, "/")
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))

	dir, err := Dir()
	if err != nil {
		dir = os.TempDir()
	}
	if c.Session.Path == "" {
		name := "session.json"
		if c.Session.Backend == "sqlite" {
			name = "session.db"
		}
		c.Session.Path = filepath.Join(dir, name)
	}
	if c.UI.HistoryFile == "" {
		c.UI.HistoryFile = filepath.Join(dir, "chat_history")
	}
	if c.Relay.UploadDir == "" {
		c.Relay.UploadDir = filepath.Join(os.TempDir(), "parley-uploads")
	}
	if c.Session.TTL.Duration == 0 {
		c.Session.TTL = Duration{DefaultSessionTTL}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks c and returns ValidateErrors when anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors

	checkURL := func(field, raw string, required bool) {
		if raw == "" {
			if required {
				errs = append(errs, ValidationError{field, "must be set"})
			}
			return
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{field, fmt.Sprintf("invalid URL %q", raw)})
		}
	}

	checkURL("api.base_url", c.API.BaseURL, true)
	checkURL("api.origin", c.API.Origin, true)
	checkURL("relay.url", c.Relay.URL, false)
	checkURL("relay.appwrite.endpoint", c.Relay.Appwrite.Endpoint, false)

	if !strings.HasPrefix(c.API.ListPath, "/") {
		errs = append(errs, ValidationError{"api.list_path", "must start with /"})
	}
	if c.API.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{"api.timeout", "must not be negative"})
	}
	switch c.Session.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, ValidationError{"session.backend",
			fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite", c.Session.Backend)})
	}
	if c.Session.TTL.Duration < time.Minute {
		errs = append(errs, ValidationError{"session.ttl", "must be at least 1m"})
	}
	if c.Session.RefreshSkew.Duration < 0 {
		errs = append(errs, ValidationError{"session.refresh_skew", "must not be negative"})
	}
	if c.Relay.MaxUploadMB <= 0 {
		errs = append(errs, ValidationError{"relay.max_upload_mb", "must be positive"})
	}
	if c.Relay.RatePerMinute <= 0 || c.Relay.Burst <= 0 {
		errs = append(errs, ValidationError{"relay.rate_per_minute", "rate and burst must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RelayReady reports whether the Appwrite settings needed by `relay serve` are present.
func (c *Config) RelayReady() error {
	var errs ValidateErrors
	if c.Relay.Appwrite.ProjectID == "" {
		errs = append(errs, ValidationError{"relay.appwrite.project_id", "must be set (APPWRITE_PROJECT_ID)"})
	}
	if c.Relay.Appwrite.BucketID == "" {
		errs = append(errs, ValidationError{"relay.appwrite.bucket_id", "must be set (APPWRITE_BUCKET_ID)"})
	}
	if c.Relay.Appwrite.APIKey == "" {
		errs = append(errs, ValidationError{"relay.appwrite.api_key", "must be set (APPWRITE_API_KEY)"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
