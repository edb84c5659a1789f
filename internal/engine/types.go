// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine orchestrates streaming assistant sends: request identity,
// delta accumulation, cancellation races, and exactly-once persistence.
package engine

import (
	"context"
	"errors"

	"github.com/jeranaias/pagemark/internal/backend"
	"github.com/jeranaias/pagemark/internal/model"
)

// =============================================================================
// MARKERS AND LIMITS
// =============================================================================

const (
	// CancelledMarker replaces the assistant text when a request is cancelled.
	CancelledMarker = "[Request cancelled]"

	// NoResponseMarker is shown when a stream completes with no text at all.
	NoResponseMarker = "No response."

	// ErrorMarkerPrefix prefixes the truncated reason on generation failure.
	ErrorMarkerPrefix = "Error: "

	// errorReasonMaxRunes bounds the failure reason shown to the user.
	errorReasonMaxRunes = 200
)

// ErrNoModel is returned when no model can be resolved from any layer:
// explicit argument, per-document preference, global preference, or the
// configured default.
var ErrNoModel = errors.New("no model configured")

// =============================================================================
// STATUS
// =============================================================================

// Status is the terminal outcome of one send, reported to the caller.
type Status string

const (
	StatusReady     Status = "ready"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// =============================================================================
// SEND PARAMETERS AND RESULT
// =============================================================================

// SendParams describes one send invocation.
type SendParams struct {
	// ItemID identifies the document the conversation belongs to.
	ItemID int64

	// ParentID is the parent document id when ItemID is an attachment;
	// zero when the item stands alone.
	ParentID int64

	// Question is the user's prompt for this turn.
	Question string

	// SelectedText is the passage the user highlighted, if any.
	SelectedText string

	// Attachments are the document attachments included with this turn,
	// each carrying its extracted text payload.
	Attachments []backend.Attachment

	// Model overrides preference and config resolution when non-empty.
	Model string
}

// SendResult reports how a send resolved.
type SendResult struct {
	RequestID uint64
	Status    Status
	Message   *model.Message
	Err       error
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// ContextBuilder produces the context block sent alongside the prompt.
// Implementations live outside the core; an empty result is valid.
type ContextBuilder interface {
	BuildContext(ctx context.Context, documentText, question string, hasAttachments bool, apiKey string) (string, error)
}

// DocumentTextCache supplies extracted document text keyed by item id.
type DocumentTextCache interface {
	EnsureCached(ctx context.Context, itemID int64) (string, error)
}

// NoteSink accepts finished conversation content for external persistence.
// The export package's Markdown and JSON exporters satisfy this.
type NoteSink interface {
	Export(conv *model.Conversation) ([]byte, error)
}
