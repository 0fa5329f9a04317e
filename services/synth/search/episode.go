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
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
)

// Stats counts episode events. Every field is updated independently.
type Stats struct {
	TrueBoxes      atomic.Int64
	FalseBoxes     atomic.Int64
	DroppedBoxes   atomic.Int64
	UnknownBoxes   atomic.Int64
	Splits         atomic.Int64
	OracleCalls    atomic.Int64
	OracleFailures atomic.Int64
	CacheHits      atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TrueBoxes      int64 `json:"true_boxes"`
	FalseBoxes     int64 `json:"false_boxes"`
	DroppedBoxes   int64 `json:"dropped_boxes"`
	UnknownBoxes   int64 `json:"unknown_boxes"`
	Splits         int64 `json:"splits"`
	OracleCalls    int64 `json:"oracle_calls"`
	OracleFailures int64 `json:"oracle_failures"`
	CacheHits      int64 `json:"cache_hits"`
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TrueBoxes:      s.TrueBoxes.Load(),
		FalseBoxes:     s.FalseBoxes.Load(),
		DroppedBoxes:   s.DroppedBoxes.Load(),
		UnknownBoxes:   s.UnknownBoxes.Load(),
		Splits:         s.Splits.Load(),
		OracleCalls:    s.OracleCalls.Load(),
		OracleFailures: s.OracleFailures.Load(),
		CacheHits:      s.CacheHits.Load(),
	}
}

func (s *Stats) countBox(l box.Label) {
	switch l {
	case box.LabelTrue:
		s.TrueBoxes.Add(1)
	case box.LabelFalse:
		s.FalseBoxes.Add(1)
	case box.LabelDropped:
		s.DroppedBoxes.Add(1)
	default:
		s.UnknownBoxes.Add(1)
	}
}

// Episode is the state shared by the workers of one search run.
//
// Description:
//
//	Holds the work queue, the termination coordinator, the witness
//	cache and the statistics. Witness points are immutable and shared by
//	reference between the cache and every box that holds them.
//
// Thread Safety: Safe for concurrent use.
type Episode struct {
	// ID identifies the run in records and logs.
	ID string

	Queue *BoxQueue
	Coord *Coordinator
	Stats Stats

	mu          sync.RWMutex
	truePoints  []box.Point
	falsePoints []box.Point

	iteration atomic.Int64
}

// NewRunID returns a 12 character hex run id.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewEpisode returns an episode for the given number of workers.
func NewEpisode(workers int) *Episode {
	q := NewBoxQueue()
	return &Episode{
		ID:    NewRunID(),
		Queue: q,
		Coord: NewCoordinator(workers, q),
	}
}

// CachedPoint returns a known witness with label l inside b.
//
// The box's own points are checked before the episode cache.
func (e *Episode) CachedPoint(b box.Box, l box.Label) (box.Point, bool) {
	var own []box.Point
	if l == box.LabelTrue {
		own = b.TruePoints()
	} else {
		own = b.FalsePoints()
	}
	for _, p := range own {
		if b.ContainsPoint(p) {
			return p, true
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	cache := e.falsePoints
	if l == box.LabelTrue {
		cache = e.truePoints
	}
	for _, p := range cache {
		if b.ContainsPoint(p) {
			return p, true
		}
	}
	return box.Point{}, false
}

// AddPoint caches a labeled witness. Unlabeled points are ignored.
func (e *Episode) AddPoint(p box.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch p.Label {
	case box.LabelTrue:
		e.truePoints = append(e.truePoints, p)
	case box.LabelFalse:
		e.falsePoints = append(e.falsePoints, p)
	}
}

// NextIteration returns the next query iteration index, starting at 0.
func (e *Episode) NextIteration() int64 {
	return e.iteration.Add(1) - 1
}
