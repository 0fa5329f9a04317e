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
	"sync/atomic"
)

// Coordinator detects when every worker is idle and the queue is empty.
//
// Description:
//
//	Each worker owns one idle flag. A worker whose pop timed out calls
//	Idle, which sets its flag and, under the same mutex, either finds
//	queued work, declares termination when every flag is set, or waits
//	on the "more work" condition. A worker that enqueued split children
//	calls Notify, which clears its flag and wakes every waiter. Waiters
//	re-check the queue after each wakeup, so a push between the check
//	and the wait is never missed.
//
// Thread Safety: Safe for concurrent use.
type Coordinator struct {
	mu    sync.Mutex
	more  *sync.Cond
	idle  []bool
	done  bool
	queue *BoxQueue

	exits atomic.Int64
}

// NewCoordinator returns a coordinator for workers numbered 0..workers-1.
func NewCoordinator(workers int, queue *BoxQueue) *Coordinator {
	c := &Coordinator{idle: make([]bool, workers), queue: queue}
	c.more = sync.NewCond(&c.mu)
	return c
}

// Idle runs the termination protocol for worker id.
//
// Outputs:
//
//	bool - True when the worker must exit, either because the search is
//	finished or because ctx is done. False when work is queued again.
func (c *Coordinator) Idle(ctx context.Context, id int) bool {
	stop := context.AfterFunc(ctx, c.wake)
	defer stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.idle[id] = true
	for {
		if c.done || ctx.Err() != nil {
			return true
		}
		if c.queue.Len() > 0 {
			c.idle[id] = false
			return false
		}
		if c.allIdle() {
			c.done = true
			c.exits.Add(1)
			c.more.Broadcast()
			return true
		}
		c.more.Wait()
	}
}

// Notify clears the idle flag of worker id and wakes idle peers.
func (c *Coordinator) Notify(id int) {
	c.mu.Lock()
	c.idle[id] = false
	c.more.Broadcast()
	c.mu.Unlock()
}

// Done reports whether termination was declared.
func (c *Coordinator) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// ExitBroadcasts returns how many times termination was broadcast.
func (c *Coordinator) ExitBroadcasts() int64 {
	return c.exits.Load()
}

func (c *Coordinator) wake() {
	c.mu.Lock()
	c.more.Broadcast()
	c.mu.Unlock()
}

func (c *Coordinator) allIdle() bool {
	for _, f := range c.idle {
		if !f {
			return false
		}
	}
	return true
}
