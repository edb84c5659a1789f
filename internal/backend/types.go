// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the text-generation service.
package backend

import (
	"time"

	"github.com/jeranaias/pagemark/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Attachment is one document attachment sent with a request: the display
// name and the extracted text payload.
type Attachment struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Request carries everything the backend needs to generate one reply.
type Request struct {
	// Model is the model name selected for this turn.
	Model string

	// Prompt is the user's question for this turn.
	Prompt string

	// Context is the selected-text passage attached to the question, if any.
	Context string

	// History is the recent conversation window, oldest first.
	History []model.Turn

	// Attachments carries the extracted text of each document attachment.
	Attachments []Attachment

	// Endpoint overrides the configured base URL when non-empty.
	Endpoint string

	// APIKey is the bearer credential for the backend, if required.
	APIKey string

	// Reasoning is the reasoning effort to request, empty to omit.
	Reasoning string
}

// wireMessage is one history entry on the wire.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the streaming request body.
type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Reasoning   string        `json:"reasoning,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// streamEvent is one NDJSON line of a streaming response.
type streamEvent struct {
	Model string `json:"model"`
	Delta struct {
		Content          string `json:"content"`
		ReasoningSummary string `json:"reasoning_summary,omitempty"`
		ReasoningDetail  string `json:"reasoning_detail,omitempty"`
	} `json:"delta"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
	Error      string `json:"error,omitempty"`

	TotalDuration int64 `json:"total_duration,omitempty"`
	EvalCount     int   `json:"eval_count,omitempty"`
}

// backendError is the error body the service returns on non-200 responses.
type backendError struct {
	Error string `json:"error"`
}

// StreamStats holds timing collected while a stream runs.
type StreamStats struct {
	StartTime      time.Time
	FirstTokenTime time.Time
	EndTime        time.Time

	TotalDuration    time.Duration
	CompletionTokens int
}
