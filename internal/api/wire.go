// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"strings"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

type messageWire struct {
	ID        string `json:"_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationWire struct {
	ID        string        `json:"_id"`
	Summary   string        `json:"summary"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Messages  []messageWire `json:"messages"`
}

type listResponse struct {
	Conversations struct {
		Today      []conversationWire `json:"today"`
		Yesterday  []conversationWire `json:"yesterday"`
		Last7Days  []conversationWire `json:"last7Days"`
		BeforeThat []conversationWire `json:"beforeThat"`
	} `json:"conversations"`
	TotalCount int `json:"total_count"`
}

type createResponse struct {
	ConversationID string `json:"conversation_id"`
}

type editSummaryRequest struct {
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
}

type streamRequest struct {
	ConversationID string              `json:"conversation_id"`
	Messages       []model.WireMessage `json:"messages"`
}

// timeLayouts covers RFC 3339 and the zone-less ISO form the backend emits.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTime returns the zero time for empty or unrecognised input.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (w conversationWire) toModel() model.Conversation {
	c := model.Conversation{
		ID:        w.ID,
		Summary:   w.Summary,
		CreatedAt: parseTime(w.CreatedAt),
		UpdatedAt: parseTime(w.UpdatedAt),
		Messages:  make([]*model.Message, 0, len(w.Messages)),
	}
	for _, m := range w.Messages {
		c.Messages = append(c.Messages, &model.Message{
			ID:        m.ID,
			Role:      model.NormalizeRole(m.Role),
			Content:   m.Content,
			CreatedAt: parseTime(m.CreatedAt),
		})
	}
	return c
}

func (r listResponse) toModel() model.BucketSet {
	var set model.BucketSet
	add := func(b model.Bucket, ws []conversationWire) {
		for _, w := range ws {
			set.Add(b, w.toModel())
		}
	}
	add(model.BucketToday, r.Conversations.Today)
	add(model.BucketYesterday, r.Conversations.Yesterday)
	add(model.BucketLast7Days, r.Conversations.Last7Days)
	add(model.BucketBeforeThat, r.Conversations.BeforeThat)
	return set
}
