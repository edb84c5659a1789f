// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request tracks request identity and cooperative cancellation.
package request

import (
	"context"
	"sync"
	"sync/atomic"
)

// =============================================================================
// REQUEST TRACKER
// =============================================================================

// Tracker issues monotonically increasing request ids, tracks the highest
// cancelled id (the watermark), and holds the single active cancellation
// handle for the in-flight send.
//
// Cancellation is cooperative: the handle cancels the transport context, but
// the watermark comparison is the authoritative "should I still apply this
// data" gate regardless of whether the transport actually stopped. Any work
// observing watermark >= its own id must treat itself as cancelled.
type Tracker struct {
	counter   atomic.Uint64
	watermark atomic.Uint64

	// Active handle. Issuing a new handle replaces the old one without
	// cancelling its transport; stale sends discover supersession through
	// the watermark and ownership checks, never through a forced abort.
	mu     sync.Mutex
	cancel context.CancelFunc
	owner  uint64
}

// NewTracker creates an empty tracker. Ids start at 1.
func NewTracker() *Tracker {
	return &Tracker{}
}

// =============================================================================
// IDENTITY
// =============================================================================

// NextRequestID returns a fresh strictly increasing id.
// Safe for concurrent use; ids are unique within the process lifetime.
func (t *Tracker) NextRequestID() uint64 {
	return t.counter.Add(1)
}

// LatestIssued returns the most recently minted id (0 if none).
func (t *Tracker) LatestIssued() uint64 {
	return t.counter.Load()
}

// =============================================================================
// WATERMARK
// =============================================================================

// CancelUpTo raises the watermark to max(watermark, id), cancelling this
// request and everything older. The watermark never decreases.
func (t *Tracker) CancelUpTo(id uint64) {
	for {
		cur := t.watermark.Load()
		if cur >= id {
			return
		}
		if t.watermark.CompareAndSwap(cur, id) {
			return
		}
	}
}

// IsCancelled reports whether the id falls at or below the watermark.
func (t *Tracker) IsCancelled(id uint64) bool {
	return t.watermark.Load() >= id
}

// Watermark returns the highest cancelled id.
func (t *Tracker) Watermark() uint64 {
	return t.watermark.Load()
}

// =============================================================================
// ACTIVE CANCELLATION HANDLE
// =============================================================================

// SetHandle installs the cancellation handle for the given request,
// replacing any previous handle. The previous handle's transport is NOT
// cancelled here; stopping an older stream is the engine's decision.
func (t *Tracker) SetHandle(id uint64, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel = cancel
	t.owner = id
}

// CancelActive raises the watermark to the active request's id and fires its
// cancellation handle. Returns the cancelled id, or 0 when no send is
// active. Safe to call at any time.
func (t *Tracker) CancelActive() uint64 {
	t.mu.Lock()
	id := t.owner
	cancel := t.cancel
	t.cancel = nil
	t.owner = 0
	t.mu.Unlock()

	if id == 0 {
		return 0
	}
	t.CancelUpTo(id)
	if cancel != nil {
		cancel()
	}
	return id
}

// CancelRequest raises the watermark to id and, when the active handle still
// belongs to that request, fires it.
func (t *Tracker) CancelRequest(id uint64) {
	t.CancelUpTo(id)

	t.mu.Lock()
	var cancel context.CancelFunc
	if t.owner != 0 && t.owner <= id {
		cancel = t.cancel
		t.cancel = nil
		t.owner = 0
	}
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// ClearHandle releases the handle if it still belongs to the given request,
// cancelling its context to prevent leaks. A handle already replaced by a
// newer send is left untouched.
func (t *Tracker) ClearHandle(id uint64) {
	t.mu.Lock()
	var cancel context.CancelFunc
	if t.owner == id {
		cancel = t.cancel
		t.cancel = nil
		t.owner = 0
	}
	t.mu.Unlock()

	// Always cancel the released context to prevent leaks.
	if cancel != nil {
		cancel()
	}
}

// ActiveRequest returns the id owning the current handle (0 if none).
func (t *Tracker) ActiveRequest() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner
}
