// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/config"
	"github.com/jeranaias/parley/internal/logging"
)

// StoredFile describes an object written to storage.
type StoredFile struct {
	ID          string
	Name        string
	DownloadURL string
	Size        int64
}

// Storage persists uploaded files.
type Storage interface {
	Put(ctx context.Context, name string, r io.Reader, size int64) (StoredFile, error)
}

// =============================================================================
// APPWRITE
// =============================================================================

const (
	// appwriteChunkSize is the largest body Appwrite accepts in one request.
	// Bigger files are sent as a sequence of Content-Range chunks.
	appwriteChunkSize = 5 * 1024 * 1024

	appwriteTimeout = 5 * time.Minute
)

// AppwriteStorage stores files in an Appwrite bucket through its REST API.
type AppwriteStorage struct {
	endpoint  string
	projectID string
	apiKey    string
	bucketID  string

	client    *http.Client
	newID     func() string
	chunkSize int
	log       *zap.Logger
}

// AppwriteOption configures AppwriteStorage.
type AppwriteOption func(*AppwriteStorage)

// WithAppwriteClient sets the HTTP client.
func WithAppwriteClient(hc *http.Client) AppwriteOption {
	return func(s *AppwriteStorage) {
		if hc != nil {
			s.client = hc
		}
	}
}

// WithAppwriteLogger sets the logger.
func WithAppwriteLogger(l *zap.Logger) AppwriteOption {
	return func(s *AppwriteStorage) { s.log = logging.OrNop(l).Named("appwrite") }
}

// NewAppwriteStorage creates a storage backend for one bucket.
func NewAppwriteStorage(cfg config.AppwriteConfig, opts ...AppwriteOption) (*AppwriteStorage, error) {
	if cfg.Endpoint == "" || cfg.ProjectID == "" || cfg.BucketID == "" {
		return nil, errors.New("appwrite endpoint, project and bucket are required")
	}
	s := &AppwriteStorage{
		endpoint:  strings.TrimSuffix(cfg.Endpoint, "/"),
		projectID: cfg.ProjectID,
		apiKey:    cfg.APIKey,
		bucketID:  cfg.BucketID,
		client:    &http.Client{Timeout: appwriteTimeout},
		newID:     uuid.NewString,
		chunkSize: appwriteChunkSize,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *AppwriteStorage) filesURL() string {
	return fmt.Sprintf("%s/storage/buckets/%s/files", s.endpoint, url.PathEscape(s.bucketID))
}

// DownloadURL returns the public download link of a stored file.
func (s *AppwriteStorage) DownloadURL(fileID string) string {
	return fmt.Sprintf("%s/%s/download?project=%s",
		s.filesURL(), url.PathEscape(fileID), url.QueryEscape(s.projectID))
}

type appwriteFile struct {
	ID   string `json:"$id"`
	Name string `json:"name"`
	Size int64  `json:"sizeOriginal"`
}

type appwriteError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

// Put uploads r as a new file named name. size must be the exact length.
func (s *AppwriteStorage) Put(ctx context.Context, name string, r io.Reader, size int64) (StoredFile, error) {
	if size < 0 {
		return StoredFile{}, fmt.Errorf("invalid size %d", size)
	}
	fileID := s.newID()
	buf := make([]byte, min(int64(s.chunkSize), size))

	var (
		file   appwriteFile
		offset int64
	)
	for first := true; first || offset < size; first = false {
		n, err := io.ReadFull(r, buf[:min(int64(len(buf)), size-offset)])
		if err != nil {
			return StoredFile{}, fmt.Errorf("read upload: %w", err)
		}

		var contentRange string
		if size > int64(s.chunkSize) {
			contentRange = fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(n)-1, size)
		}
		file, err = s.sendChunk(ctx, fileID, name, buf[:n], contentRange, !first)
		if err != nil {
			return StoredFile{}, err
		}
		offset += int64(n)
	}

	if file.ID == "" {
		file.ID = fileID
	}
	s.log.Info("file stored", zap.String("file_id", file.ID), zap.Int64("size", size))
	return StoredFile{
		ID:          file.ID,
		Name:        name,
		DownloadURL: s.DownloadURL(file.ID),
		Size:        size,
	}, nil
}

func (s *AppwriteStorage) sendChunk(ctx context.Context, fileID, name string, chunk []byte, contentRange string, continued bool) (appwriteFile, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("fileId", fileID); err != nil {
		return appwriteFile{}, err
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return appwriteFile{}, err
	}
	if _, err := part.Write(chunk); err != nil {
		return appwriteFile{}, err
	}
	if err := mw.Close(); err != nil {
		return appwriteFile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.filesURL(), &body)
	if err != nil {
		return appwriteFile{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Appwrite-Project", s.projectID)
	if s.apiKey != "" {
		req.Header.Set("X-Appwrite-Key", s.apiKey)
	}
	if contentRange != "" {
		req.Header.Set("Content-Range", contentRange)
	}
	if continued {
		req.Header.Set("X-Appwrite-ID", fileID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return appwriteFile{}, fmt.Errorf("appwrite request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return appwriteFile{}, fmt.Errorf("read appwrite response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae appwriteError
		if json.Unmarshal(data, &ae) == nil && ae.Message != "" {
			return appwriteFile{}, errors.New(ae.Message)
		}
		return appwriteFile{}, fmt.Errorf("appwrite returned HTTP %d", resp.StatusCode)
	}

	var out appwriteFile
	if err := json.Unmarshal(data, &out); err != nil {
		return appwriteFile{}, fmt.Errorf("parse appwrite response: %w", err)
	}
	return out, nil
}
