// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestNextRequestIDMonotonic(t *testing.T) {
	tr := NewTracker()

	prev := uint64(0)
	for i := 0; i < 1000; i++ {
		id := tr.NextRequestID()
		if id <= prev {
			t.Fatalf("id %d not strictly greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestNextRequestIDConcurrentUnique(t *testing.T) {
	tr := NewTracker()

	const goroutines = 8
	const perGoroutine = 500

	var mu sync.Mutex
	ids := make([]uint64, 0, goroutines*perGoroutine)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]uint64, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				local = append(local, tr.NextRequestID())
			}
			mu.Lock()
			ids = append(ids, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("duplicate id %d", ids[i])
		}
	}
	if ids[0] != 1 || ids[len(ids)-1] != uint64(goroutines*perGoroutine) {
		t.Errorf("id range = [%d, %d], want [1, %d]", ids[0], ids[len(ids)-1], goroutines*perGoroutine)
	}
}

func TestWatermark(t *testing.T) {
	tr := NewTracker()

	id1 := tr.NextRequestID()
	id2 := tr.NextRequestID()
	id3 := tr.NextRequestID()

	tr.CancelUpTo(id2)

	if !tr.IsCancelled(id1) {
		t.Error("older id should be cancelled")
	}
	if !tr.IsCancelled(id2) {
		t.Error("cancelled id should be cancelled")
	}
	if tr.IsCancelled(id3) {
		t.Error("newer id should not be cancelled")
	}

	// The watermark never decreases.
	tr.CancelUpTo(id1)
	if tr.Watermark() != id2 {
		t.Errorf("Watermark = %d, want %d", tr.Watermark(), id2)
	}
}

func TestSetHandleReplacesWithoutCancelling(t *testing.T) {
	tr := NewTracker()

	firstCancelled := false
	id1 := tr.NextRequestID()
	tr.SetHandle(id1, func() { firstCancelled = true })

	id2 := tr.NextRequestID()
	tr.SetHandle(id2, func() {})

	if firstCancelled {
		t.Error("replacing the handle must not fire the previous transport abort")
	}
	if tr.ActiveRequest() != id2 {
		t.Errorf("ActiveRequest = %d, want %d", tr.ActiveRequest(), id2)
	}
}

func TestCancelActive(t *testing.T) {
	tr := NewTracker()

	if got := tr.CancelActive(); got != 0 {
		t.Errorf("CancelActive with no handle = %d, want 0", got)
	}

	id := tr.NextRequestID()
	ctx, cancel := context.WithCancel(context.Background())
	tr.SetHandle(id, cancel)

	got := tr.CancelActive()
	if got != id {
		t.Errorf("CancelActive = %d, want %d", got, id)
	}
	if !tr.IsCancelled(id) {
		t.Error("cancelled request should be at or below the watermark")
	}
	if ctx.Err() == nil {
		t.Error("transport context should be cancelled")
	}
	if tr.ActiveRequest() != 0 {
		t.Error("handle should be cleared after CancelActive")
	}
}

func TestCancelRequestIgnoresNewerHandle(t *testing.T) {
	tr := NewTracker()

	id1 := tr.NextRequestID()
	id2 := tr.NextRequestID()

	newerFired := false
	tr.SetHandle(id2, func() { newerFired = true })

	tr.CancelRequest(id1)

	if !tr.IsCancelled(id1) {
		t.Error("cancelled request should be below the watermark")
	}
	if tr.IsCancelled(id2) {
		t.Error("newer request should not be cancelled")
	}
	if newerFired {
		t.Error("cancelling an older request must not abort the newer transport")
	}
}

func TestClearHandleOwnership(t *testing.T) {
	tr := NewTracker()

	id1 := tr.NextRequestID()
	ctx1, cancel1 := context.WithCancel(context.Background())
	tr.SetHandle(id1, cancel1)

	// A newer send replaces the handle; the old send's cleanup must not
	// disturb it.
	id2 := tr.NextRequestID()
	ctx2, cancel2 := context.WithCancel(context.Background())
	tr.SetHandle(id2, cancel2)

	tr.ClearHandle(id1)
	if tr.ActiveRequest() != id2 {
		t.Errorf("ActiveRequest = %d, want %d", tr.ActiveRequest(), id2)
	}
	if ctx1.Err() != nil {
		t.Error("replaced handle's context is the stale send's to cancel, not the tracker's")
	}
	if ctx2.Err() != nil {
		t.Error("newer context must not be cancelled by a stale cleanup")
	}

	tr.ClearHandle(id2)
	if tr.ActiveRequest() != 0 {
		t.Error("handle should be cleared by its owner")
	}
	if ctx2.Err() == nil {
		t.Error("released context should be cancelled to prevent leaks")
	}
}
