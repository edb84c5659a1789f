// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/pagemark/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports conversations to JSON format.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// jsonDocument is the top-level export structure.
type jsonDocument struct {
	Conversation int64         `json:"conversation"`
	Exported     string        `json:"exported,omitempty"`
	Generator    string        `json:"generator,omitempty"`
	Messages     []jsonMessage `json:"messages"`
}

// jsonMessage is one exported message.
type jsonMessage struct {
	ID               string `json:"id"`
	Role             string `json:"role"`
	Timestamp        string `json:"timestamp,omitempty"`
	Text             string `json:"text"`
	SelectedText     string `json:"selected_text,omitempty"`
	ModelName        string `json:"model_name,omitempty"`
	ReasoningSummary string `json:"reasoning_summary,omitempty"`
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	if len(conv.Messages) == 0 {
		return nil, fmt.Errorf("conversation has no messages")
	}

	doc := jsonDocument{
		Conversation: int64(conv.Key),
		Messages:     make([]jsonMessage, 0, len(conv.Messages)),
	}
	if e.options.IncludeMetadata {
		doc.Exported = time.Now().Format(time.RFC3339)
		doc.Generator = "pagemark"
	}

	for _, msg := range conv.Messages {
		out := jsonMessage{
			ID:           msg.ID,
			Role:         string(msg.Role),
			Text:         msg.DisplayText(),
			SelectedText: msg.SelectedTextContext,
			ModelName:    msg.ModelName,
		}
		if e.options.IncludeTimestamps {
			out.Timestamp = time.UnixMilli(msg.Timestamp).Format(time.RFC3339)
		}
		if e.options.IncludeReasoning {
			summary, _ := msg.DisplayReasoning()
			out.ReasoningSummary = summary
		}
		doc.Messages = append(doc.Messages, out)
	}

	return json.MarshalIndent(doc, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
