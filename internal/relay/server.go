// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/logging"
)

const (
	// InsertFilePath receives uploads.
	InsertFilePath = "/api/insert-file"

	// HealthPath reports liveness.
	HealthPath = "/health"

	// DefaultAddr is used when Options.Addr is empty.
	DefaultAddr = "127.0.0.1:3001"

	// DefaultMaxUploadBytes caps a single upload.
	DefaultMaxUploadBytes = 25 << 20

	// multipartOverhead is allowed on top of the file for boundaries and headers.
	multipartOverhead = 64 << 10

	// MsgNoFile is returned when the request carries no "file" field.
	MsgNoFile = "No file uploaded"

	// Version is reported by /health.
	Version = "1.0.0"
)

// ============================================================================
// STATS
// ============================================================================

// Stats counts relay activity.
type Stats struct {
	Uploads   atomic.Int64
	Failures  atomic.Int64
	Bytes     atomic.Int64
	StartTime time.Time
}

// Uptime returns how long the relay has been running.
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// ============================================================================
// SERVER
// ============================================================================

// Options configures a Server.
type Options struct {
	Addr           string
	UploadDir      string
	MaxUploadBytes int64
	RatePerMinute  int
	Burst          int
	AllowedOrigins []string
}

// Server is the file relay HTTP server.
type Server struct {
	opts    Options
	storage Storage
	log     *zap.Logger
	stats   *Stats
	limiter *RateLimiter
	router  *http.ServeMux
	handler http.Handler

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a relay that stores uploads in storage.
func NewServer(storage Storage, opts Options, log *zap.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.UploadDir == "" {
		opts.UploadDir = os.TempDir()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.RatePerMinute <= 0 {
		opts.RatePerMinute = 60
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}

	s := &Server{
		opts:    opts,
		storage: storage,
		log:     logging.OrNop(log).Named("relay"),
		stats:   &Stats{StartTime: time.Now()},
		limiter: NewRateLimiter(opts.RatePerMinute, opts.Burst),
		router:  http.NewServeMux(),
	}
	s.setupRoutes()

	cors := DefaultCORSConfig()
	if len(opts.AllowedOrigins) > 0 {
		cors.AllowedOrigins = opts.AllowedOrigins
	}
	s.handler = Chain(
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		CORSMiddleware(cors),
		LoggingMiddleware(s.log),
		RateLimitMiddleware(s.limiter, s.log),
	)(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST "+InsertFilePath, s.handleInsertFile)
	s.router.HandleFunc("GET "+HealthPath, s.handleHealth)
}

// Handler returns the routed handler with its middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Stats returns the live counters.
func (s *Server) Stats() *Stats {
	return s.stats
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// ============================================================================
// HANDLERS
// ============================================================================

// UploadResponse is the success body of POST /api/insert-file.
type UploadResponse struct {
	FileID      string `json:"fileId"`
	DownloadURL string `json:"downloadUrl"`
	FileName    string `json:"fileName"`
}

var errNoFile = errors.New(MsgNoFile)

func (s *Server) handleInsertFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)

	part, err := fileField(r)
	if err != nil {
		s.uploadError(w, err)
		return
	}
	defer part.Close()

	name := part.FileName()
	spool, size, err := s.spool(part)
	if err != nil {
		s.uploadError(w, err)
		return
	}
	defer func() {
		spool.Close()
		if err := os.Remove(spool.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("failed to remove spooled upload", zap.String("path", spool.Name()), zap.Error(err))
		}
	}()

	stored, err := s.storage.Put(r.Context(), name, spool, size)
	if err != nil {
		s.stats.Failures.Add(1)
		s.log.Error("storage rejected upload", zap.String("file", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.stats.Uploads.Add(1)
	s.stats.Bytes.Add(size)
	writeJSON(w, http.StatusOK, UploadResponse{
		FileID:      stored.ID,
		DownloadURL: stored.DownloadURL,
		FileName:    name,
	})
}

// fileField advances to the multipart part named "file".
func fileField(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}
	for {
		part, err := mr.NextPart()
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, err
			}
			return nil, errNoFile
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// spool copies the upload to a temporary file and rewinds it. The caller
// removes the file.
func (s *Server) spool(part io.Reader) (*os.File, int64, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0700); err != nil {
		return nil, 0, fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.CreateTemp(s.opts.UploadDir, "upload-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create spool file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(part, s.opts.MaxUploadBytes+1))
	if err == nil && size > s.opts.MaxUploadBytes {
		err = &http.MaxBytesError{Limit: s.opts.MaxUploadBytes}
	}
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, err
	}
	return f, size, nil
}

func (s *Server) uploadError(w http.ResponseWriter, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, errNoFile):
		writeError(w, http.StatusBadRequest, MsgNoFile)
	case errors.As(err, &tooBig):
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("File exceeds maximum size of %d MB", s.opts.MaxUploadBytes>>20))
	default:
		s.stats.Failures.Add(1)
		s.log.Error("upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Uploads  int64  `json:"uploads"`
	Failures int64  `json:"failures"`
	Bytes    int64  `json:"bytes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Uptime:   s.stats.Uptime().Round(time.Second).String(),
		Uploads:  s.stats.Uploads.Load(),
		Failures: s.stats.Failures.Load(),
		Bytes:    s.stats.Bytes.Load(),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.log.Info("relay listening", zap.String("addr", ln.Addr().String()), zap.String("version", Version))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting uploads and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.limiter.Close()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	s.log.Info("relay shutting down",
		zap.Int64("uploads", s.stats.Uploads.Load()),
		zap.Int64("failures", s.stats.Failures.Load()),
	)
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
