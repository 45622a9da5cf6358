// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxResponseSize caps every response body except the reply stream.
const MaxResponseSize = 10 * 1024 * 1024

var (
	// ErrResponseTooLarge indicates a body hit MaxResponseSize.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")

	// ErrInvalidID indicates an empty conversation id was passed.
	ErrInvalidID = errors.New("conversation id is required")
)

// APIError is a non-2xx response. Body holds the raw payload for callers that
// need to classify it.
type APIError struct {
	Status int
	Body   []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if d := e.Detail(); d != "" {
		return fmt.Sprintf("api error (HTTP %d): %s", e.Status, d)
	}
	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("api error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, body)
}

// Detail returns the string "detail" field of a JSON body, or "".
func (e *APIError) Detail() string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	if s, ok := payload.Detail.(string); ok {
		return s
	}
	return ""
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// ReadBody reads at most MaxResponseSize bytes of resp.Body.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w of %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

// CheckResponse returns an *APIError for non-2xx responses. It consumes the
// body only in that case.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, err := ReadBody(resp)
	if err != nil {
		body = nil
	}
	return &APIError{Status: resp.StatusCode, Body: body}
}
