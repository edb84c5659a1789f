// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/pagemark/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// While Streaming is true, text and reasoning grow append-only via the delta
// methods. A streaming message transitions to non-streaming exactly once,
// through FinalizeText, FinalizeCancelled, or FinalizeError; it is never
// removed from its conversation, only overwritten.
//
// Delta application happens on the engine goroutine while the refresh
// scheduler may read the message from a timer goroutine, so the mutable
// fields are guarded by a mutex.
type Message struct {
	// Identity
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch

	// Content
	Text string `json:"text"`

	// Optional user-message context
	SelectedTextContext string `json:"selectedTextContext,omitempty"`

	// Assistant metadata
	ModelName        string `json:"modelName,omitempty"`
	ReasoningSummary string `json:"reasoningSummary,omitempty"`
	ReasoningDetails string `json:"reasoningDetails,omitempty"`

	// ReasoningOpen defaults to true on the first reasoning delta so a live
	// view shows the trace as it arrives. Not persisted.
	ReasoningOpen bool `json:"-"`

	// Streaming state
	Streaming bool `json:"-"`

	mu sync.Mutex
	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	streamText    strings.Builder
	streamSummary strings.Builder
	streamDetails strings.Builder
}

// NewUserMessage creates a user message with the given text and optional
// selected-text context.
func NewUserMessage(text, selectedText string) *Message {
	return &Message{
		ID:                  generateID(),
		Role:                RoleUser,
		Text:                text,
		SelectedTextContext: selectedText,
		Timestamp:           nowMillis(),
	}
}

// NewAssistantMessage creates a streaming assistant placeholder for the
// given model. Its text is empty until deltas arrive.
func NewAssistantMessage(modelName string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		ModelName: modelName,
		Timestamp: nowMillis(),
		Streaming: true,
	}
}

// =============================================================================
// STREAMING MUTATION
// =============================================================================

// AppendText appends a text delta verbatim to a streaming message.
// Deltas are concatenated raw, with no boundary splitting or re-sanitization.
// No-op once the message has been finalized.
func (m *Message) AppendText(delta string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Streaming {
		m.streamText.WriteString(delta)
	}
}

// AppendReasoning appends reasoning deltas. Summary and details accumulate
// independently; either may be empty on any given event. The first reasoning
// event for a message defaults its visibility to open.
func (m *Message) AppendReasoning(summary, details string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Streaming {
		return
	}
	if m.streamSummary.Len() == 0 && m.streamDetails.Len() == 0 {
		m.ReasoningOpen = true
	}
	m.streamSummary.WriteString(summary)
	m.streamDetails.WriteString(details)
}

// AccumulatedText returns the partial text gathered so far while streaming.
func (m *Message) AccumulatedText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamText.String()
}

// FinalizeText completes streaming with the given final text.
// The accumulated reasoning is kept. No-op if already finalized.
func (m *Message) FinalizeText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Streaming {
		return
	}
	m.Text = text
	m.ReasoningSummary = m.streamSummary.String()
	m.ReasoningDetails = m.streamDetails.String()
	m.resetBuilders()
	m.Streaming = false
}

// FinalizeCancelled completes streaming with the cancellation marker,
// discarding any partial text and reasoning.
func (m *Message) FinalizeCancelled(marker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Streaming {
		return
	}
	m.Text = marker
	m.ReasoningSummary = ""
	m.ReasoningDetails = ""
	m.ReasoningOpen = false
	m.resetBuilders()
	m.Streaming = false
}

// FinalizeError completes streaming with an error marker.
// Accumulated reasoning is kept for diagnosis.
func (m *Message) FinalizeError(marker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Streaming {
		return
	}
	m.Text = marker
	m.ReasoningSummary = m.streamSummary.String()
	m.ReasoningDetails = m.streamDetails.String()
	m.resetBuilders()
	m.Streaming = false
}

// resetBuilders releases streaming buffers. Caller must hold the lock.
func (m *Message) resetBuilders() {
	m.streamText.Reset()
	m.streamSummary.Reset()
	m.streamDetails.Reset()
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// DisplayText returns the text to display: the in-flight accumulation while
// streaming, the final text afterwards.
func (m *Message) DisplayText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Streaming {
		return m.streamText.String()
	}
	return m.Text
}

// DisplayReasoning returns the current reasoning summary and details.
func (m *Message) DisplayReasoning() (summary, details string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Streaming {
		return m.streamSummary.String(), m.streamDetails.String()
	}
	return m.ReasoningSummary, m.ReasoningDetails
}

// IsStreaming reports whether the message is still being produced.
func (m *Message) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Streaming
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.DisplayText(), maxLen)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.New().String()
}

// nowMillis returns the current time in milliseconds since the epoch.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
