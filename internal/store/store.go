// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides durable message persistence for pagemark.
package store

import (
	"context"
	"errors"

	"github.com/jeranaias/pagemark/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when no messages exist for a key.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// =============================================================================
// MESSAGE STORE CONTRACT
// =============================================================================

// MessageStore is the durable ordered log of messages per conversation key.
//
// Persistence is best-effort from the engine's point of view: callers log
// and swallow failures, and the in-memory conversation remains authoritative
// for the session. The store is the source of truth on cold start.
type MessageStore interface {
	// Append adds a message to the tail of the conversation's log.
	Append(ctx context.Context, key model.ConversationKey, msg *model.Message) error

	// Load returns the most recent limit messages for the key in original
	// order. A key with no messages returns ErrConversationNotFound.
	Load(ctx context.Context, key model.ConversationKey, limit int) ([]*model.Message, error)

	// Prune drops the oldest messages beyond limit.
	Prune(ctx context.Context, key model.ConversationKey, limit int) error

	// Clear removes the conversation's entire log.
	Clear(ctx context.Context, key model.ConversationKey) error
}
