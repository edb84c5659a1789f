// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package convcache provides the in-memory conversation cache.
package convcache

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/pagemark/internal/model"
	"github.com/jeranaias/pagemark/internal/store"
)

// =============================================================================
// CONVERSATION CACHE
// =============================================================================

// Cache maps conversation keys to their ordered message lists and tracks
// per-key load state. Loads from the durable store are single-flight:
// concurrent EnsureLoaded calls for the same key share one store read.
//
// The cache is a process-wide singleton in practice; all mutation goes
// through the engine, but reads may come from render callbacks on other
// goroutines, so the map is mutex-guarded.
type Cache struct {
	mu            sync.Mutex
	conversations map[model.ConversationKey]*model.Conversation
	loaded        map[model.ConversationKey]bool

	flight  singleflight.Group
	backing store.MessageStore
	limit   int
	log     *zap.Logger
}

// New creates a cache backed by the given store. limit bounds the retained
// message count per conversation; zero means model.PersistedHistoryLimit.
func New(backing store.MessageStore, limit int, log *zap.Logger) *Cache {
	if limit <= 0 {
		limit = model.PersistedHistoryLimit
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		conversations: make(map[model.ConversationKey]*model.Conversation),
		loaded:        make(map[model.ConversationKey]bool),
		backing:       backing,
		limit:         limit,
		log:           log,
	}
}

// =============================================================================
// LOAD
// =============================================================================

// EnsureLoaded loads the conversation from the store on first use.
// Idempotent: already-loaded keys return immediately, and concurrent callers
// for an unseen key share a single underlying store read. A failed load is
// recovered locally by seeding an empty conversation; the error is logged
// and never surfaced to the caller.
func (c *Cache) EnsureLoaded(ctx context.Context, key model.ConversationKey) {
	c.mu.Lock()
	if c.loaded[key] {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Single-flight: concurrent loads for the same key coalesce here.
	c.flight.Do(strconv.FormatInt(int64(key), 10), func() (interface{}, error) {
		c.mu.Lock()
		already := c.loaded[key]
		c.mu.Unlock()
		if already {
			return nil, nil
		}

		msgs, err := c.backing.Load(ctx, key, c.limit)
		switch {
		case errors.Is(err, store.ErrConversationNotFound):
			// First conversation for this key; start empty.
			msgs = nil
		case err != nil:
			c.log.Warn("conversation load failed, seeding empty history",
				zap.Int64("conversation", int64(key)), zap.Error(err))
			msgs = nil
		}

		conv := &model.Conversation{Key: key}
		for _, m := range msgs {
			conv.Append(m)
		}

		c.mu.Lock()
		c.conversations[key] = conv
		c.loaded[key] = true
		c.mu.Unlock()
		return nil, nil
	})
}

// IsLoaded reports whether the key has been loaded (or cleared).
func (c *Cache) IsLoaded(key model.ConversationKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded[key]
}

// =============================================================================
// READ / MUTATE
// =============================================================================

// Get returns the ordered message list for the key. Unloaded or absent keys
// return an empty slice. The returned slice is a copy; the messages are
// shared.
func (c *Cache) Get(key model.ConversationKey) []*model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[key]
	if !ok {
		return []*model.Message{}
	}
	out := make([]*model.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out
}

// Append pushes a message onto the conversation's tail, dropping from the
// head beyond the retained limit. Appending to an unloaded key creates the
// conversation in place.
func (c *Cache) Append(key model.ConversationKey, msg *model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[key]
	if !ok {
		conv = &model.Conversation{Key: key}
		c.conversations[key] = conv
	}
	conv.Append(msg)
	if len(conv.Messages) > c.limit {
		drop := len(conv.Messages) - c.limit
		conv.Messages = conv.Messages[drop:]
	}
}

// HistoryWindow returns up to limit of the most recent messages as bare
// role/text turns for the backend request.
func (c *Cache) HistoryWindow(key model.ConversationKey, limit int) []model.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[key]
	if !ok {
		return nil
	}
	return conv.HistoryWindow(limit)
}

// Clear removes the conversation from the cache and marks the key loaded,
// so a subsequent read does not trigger a spurious reload while the durable
// clear proceeds asynchronously.
func (c *Cache) Clear(key model.ConversationKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conversations, key)
	c.loaded[key] = true
}
