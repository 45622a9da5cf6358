// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"io"
	"net/http"

	"github.com/jeranaias/parley/internal/model"
)

// StreamPath is the reply generation endpoint.
const StreamPath = "/api/generate/stream"

// Stream sends the transcript and returns the text/plain reply body. The body
// is not size-capped; cancel ctx to abandon it. The caller must close it.
func (c *Client) Stream(ctx context.Context, conversationID string, messages []model.WireMessage) (io.ReadCloser, error) {
	if messages == nil {
		messages = []model.WireMessage{}
	}
	body := streamRequest{ConversationID: conversationID, Messages: messages}
	req, err := c.newRequest(ctx, http.MethodPost, StreamPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.send(c.streamClient, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
