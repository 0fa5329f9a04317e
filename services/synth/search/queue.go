// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
)

// BoxQueue is the shared FIFO of boxes awaiting classification.
//
// Description:
//
//	Pop waits a bounded time for work. Waiters are released through a
//	channel that is closed and replaced on every push, so a waiter never
//	misses a push that happens after it released the lock.
//
// Thread Safety: Safe for concurrent use.
type BoxQueue struct {
	mu    sync.Mutex
	items []box.Box
	ready chan struct{}
}

// NewBoxQueue returns an empty queue.
func NewBoxQueue() *BoxQueue {
	return &BoxQueue{ready: make(chan struct{})}
}

// Push appends one box.
func (q *BoxQueue) Push(b box.Box) {
	q.PushAll(b)
}

// PushAll appends every box in one critical section. No popper observes
// a prefix of bs.
func (q *BoxQueue) PushAll(bs ...box.Box) {
	if len(bs) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, bs...)
	close(q.ready)
	q.ready = make(chan struct{})
	q.mu.Unlock()
}

// Pop removes the oldest box, waiting up to timeout for one to arrive.
//
// Outputs:
//
//	box.Box - The popped box.
//	bool - False on timeout or when ctx is done first.
func (q *BoxQueue) Pop(ctx context.Context, timeout time.Duration) (box.Box, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			b := q.items[0]
			q.items[0] = box.Box{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return b, true
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-timer.C:
			return box.Box{}, false
		case <-ctx.Done():
			return box.Box{}, false
		}
	}
}

// Len returns the number of queued boxes.
func (q *BoxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued box.
func (q *BoxQueue) Drain() []box.Box {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}
