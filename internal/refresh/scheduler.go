// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package refresh coalesces high-frequency streaming updates into
// bounded-rate render signals.
package refresh

import (
	"sync"
	"time"
)

// DefaultWindow is the coalescing window for render refreshes. Token streams
// can deliver hundreds of deltas per second; one render per window is enough
// for a live view while keeping CPU flat.
const DefaultWindow = 50 * time.Millisecond

// =============================================================================
// REFRESH SCHEDULER
// =============================================================================

// Scheduler coalesces bursts of Request calls into at most one render per
// window. While a refresh is pending, further requests only update the
// callback; when the window elapses the most recent callback runs once,
// reading whatever state exists at execution time. State is never
// snapshotted at schedule time, so the final accumulation is never dropped.
type Scheduler struct {
	mu      sync.Mutex
	window  time.Duration
	pending bool
	render  func()
}

// NewScheduler creates a scheduler with the given coalescing window.
// A non-positive window falls back to DefaultWindow.
func NewScheduler(window time.Duration) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{window: window}
}

// Request schedules render to run once the current coalescing window
// elapses. Calls made while a refresh is pending are no-ops apart from
// replacing the callback with the latest one.
func (s *Scheduler) Request(render func()) {
	if render == nil {
		return
	}
	s.mu.Lock()
	s.render = render
	if s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = true
	s.mu.Unlock()

	time.AfterFunc(s.window, s.fire)
}

// fire clears the pending flag and executes the latest callback outside the
// lock, so a render may itself request another refresh.
func (s *Scheduler) fire() {
	s.mu.Lock()
	render := s.render
	s.pending = false
	s.mu.Unlock()

	if render != nil {
		render()
	}
}

// Pending reports whether a refresh is currently scheduled.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
