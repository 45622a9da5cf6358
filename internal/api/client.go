// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/parley/internal/logging"
	"github.com/jeranaias/parley/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the local development backend.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultListPath is the grouped conversation list endpoint.
	DefaultListPath = "/api/newwww"

	// DefaultTimeout bounds every request except the reply stream.
	DefaultTimeout = 30 * time.Second

	userAgent = "parley/1.0"
)

// Client talks to the conversation backend.
type Client struct {
	baseURL  string
	listPath string

	// httpClient carries the request timeout; streamClient shares its
	// transport but relies on the context alone.
	httpClient   *http.Client
	streamClient *http.Client

	log *zap.Logger
}

// NewClient creates a client for baseURL. hc is normally built by
// auth.Guard.Client; nil uses a plain client with DefaultTimeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	c := &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		listPath: DefaultListPath,
		log:      zap.NewNop(),
	}
	c.setHTTPClient(hc)
	return c
}

func (c *Client) setHTTPClient(hc *http.Client) {
	c.httpClient = hc
	c.streamClient = &http.Client{
		Transport:     hc.Transport,
		CheckRedirect: hc.CheckRedirect,
		Jar:           hc.Jar,
	}
}

// WithListPath overrides the conversation list endpoint.
func (c *Client) WithListPath(path string) *Client {
	if path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		c.listPath = path
	}
	return c
}

// WithLogger sets the request logger.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	c.log = logging.OrNop(l).Named("api")
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.setHTTPClient(hc)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

// send executes req on hc, logs it and converts non-2xx into *APIError.
// The caller owns the body of a nil-error response.
func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.log.Debug("request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if err := CheckResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// do performs a JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.send(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversations fetches every conversation grouped by age.
func (c *Client) ListConversations(ctx context.Context) (model.BucketSet, error) {
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, c.listPath, nil, &resp); err != nil {
		return model.BucketSet{}, err
	}
	set := resp.toModel()
	if resp.TotalCount != set.Total() {
		c.log.Warn("conversation count mismatch",
			zap.Int("total_count", resp.TotalCount),
			zap.Int("received", set.Total()))
	}
	return set, nil
}

// CreateConversation asks the backend for a new conversation and returns its id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var resp createResponse
	if err := c.do(ctx, http.MethodPost, "/api/conversation/create", nil, &resp); err != nil {
		return "", err
	}
	if resp.ConversationID == "" {
		return "", fmt.Errorf("failed to parse response: missing conversation_id")
	}
	return resp.ConversationID, nil
}

// EditSummary renames a conversation.
func (c *Client) EditSummary(ctx context.Context, id, summary string) error {
	if id == "" {
		return ErrInvalidID
	}
	body := editSummaryRequest{ConversationID: id, Summary: summary}
	return c.do(ctx, http.MethodPatch, "/api/conversations/summary/edit", body, nil)
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return c.do(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(id)+"/delete", nil, nil)
}

// ShareConversation marks a conversation as shared.
func (c *Client) ShareConversation(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}
	return c.do(ctx, http.MethodPost, "/api/conversations/"+url.PathEscape(id)+"/share", nil, nil)
}
