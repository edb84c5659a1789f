// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

// PersistedHistoryLimit is the maximum number of messages retained per
// conversation, both in memory and in the durable store. When exceeded,
// the oldest messages are trimmed first.
const PersistedHistoryLimit = 100

// MaxHistoryMessages is the maximum number of prior messages included in the
// history window sent to the generation backend.
const MaxHistoryMessages = 20

// =============================================================================
// CONVERSATION KEY
// =============================================================================

// ConversationKey identifies the document a conversation is attached to.
// All messages for one key form a single ordered conversation.
type ConversationKey int64

// CanonicalKey maps an item to its conversation key. An attachment with a
// parent is canonicalized to the parent's id so that a PDF attachment and
// its document share one conversation.
func CanonicalKey(itemID, parentID int64) ConversationKey {
	if parentID > 0 {
		return ConversationKey(parentID)
	}
	return ConversationKey(itemID)
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an ordered sequence of messages for one key.
// Insertion order is significant; the slice is bounded by
// PersistedHistoryLimit with the head dropped first.
type Conversation struct {
	Key      ConversationKey
	Messages []*Message
}

// Append pushes a message onto the tail, trimming from the head when the
// retained limit is exceeded.
func (c *Conversation) Append(msg *Message) {
	c.Messages = append(c.Messages, msg)
	if len(c.Messages) > PersistedHistoryLimit {
		drop := len(c.Messages) - PersistedHistoryLimit
		c.Messages = c.Messages[drop:]
	}
}

// Last returns the most recent message, or nil if empty.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// StreamingMessage returns the message currently being produced, or nil.
// At most one streaming message exists per conversation at any time.
func (c *Conversation) StreamingMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsStreaming() {
			return c.Messages[i]
		}
	}
	return nil
}

// HistoryWindow returns up to limit of the most recent messages as role/text
// pairs, preserving order. Metadata, reasoning, and context annotations are
// not included. A non-positive limit yields no turns.
func (c *Conversation) HistoryWindow(limit int) []Turn {
	if limit <= 0 {
		return nil
	}
	msgs := c.Messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: m.Role, Text: m.DisplayText()})
	}
	return turns
}

// Turn is a bare role/text pair used for the backend history window.
type Turn struct {
	Role Role
	Text string
}
