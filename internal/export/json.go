// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/jeranaias/parley/internal/model"
)

// Document is the structured form shared by the JSON and YAML exporters.
type Document struct {
	ID         string            `json:"id" yaml:"id"`
	Summary    string            `json:"summary" yaml:"summary"`
	CreatedAt  time.Time         `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
	ExportedAt time.Time         `json:"exported_at" yaml:"exported_at"`
	Generator  string            `json:"generator" yaml:"generator"`
	Messages   []DocumentMessage `json:"messages" yaml:"messages"`
}

// DocumentMessage is one transcript entry.
type DocumentMessage struct {
	Role      string    `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// NewDocument builds the structured form of conv.
func NewDocument(conv *model.Conversation, exportedAt time.Time) Document {
	doc := Document{
		ID:         conv.ID,
		Summary:    conv.DisplaySummary(),
		CreatedAt:  conv.CreatedAt,
		UpdatedAt:  conv.UpdatedAt,
		ExportedAt: exportedAt,
		Generator:  Generator,
		Messages:   make([]DocumentMessage, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		if m == nil {
			continue
		}
		doc.Messages = append(doc.Messages, DocumentMessage{
			Role:      m.Role.String(),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return doc
}

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the full document as indented JSON. Options other than
// the clock are ignored; the document is always complete.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export implements Exporter.
func (e *JSONExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}
	return json.MarshalIndent(NewDocument(conv, e.options.now()), "", "  ")
}

// FileExtension implements Exporter.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType implements Exporter.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
