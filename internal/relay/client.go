// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/logging"
)

// UploadError is a non-200 answer from the relay.
type UploadError struct {
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("relay returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("relay returned HTTP %d: %s", e.Status, e.Message)
}

// Client uploads files to a relay.
type Client struct {
	baseURL string
	hc      *http.Client
	log     *zap.Logger
}

// NewClient creates a client for the relay at baseURL. A nil hc uses a client
// with a five minute timeout.
func NewClient(baseURL string, hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      hc,
		log:     logging.OrNop(log).Named("relay"),
	}
}

// Upload sends the file at path to the relay at baseURL.
func Upload(ctx context.Context, baseURL, path string) (*UploadResponse, error) {
	return NewClient(baseURL, nil, nil).Upload(ctx, path)
}

// Upload sends the file at path and returns the stored file's details.
func (c *Client) Upload(ctx context.Context, path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+InsertFilePath, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read relay response: %w", err)
	}
	c.log.Debug("upload finished",
		zap.String("file", info.Name()),
		zap.Int64("size", info.Size()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		var body errorBody
		json.Unmarshal(data, &body)
		return nil, &UploadError{Status: resp.StatusCode, Message: body.Error}
	}

	var out UploadResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse relay response: %w", err)
	}
	return &out, nil
}
