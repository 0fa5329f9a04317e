// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handler defines the consumer of classification records emitted
// by a search, and a few general-purpose implementations.
//
// A search calls Open once, Process once per emitted box or point, and
// Close once when the run ends, including on error paths. All calls come
// from a single goroutine.
package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
)

// Kind distinguishes box records from point records.
type Kind string

const (
	// KindBox carries a classified box.
	KindBox Kind = "box"

	// KindPoint carries a witness point.
	KindPoint Kind = "point"
)

// Record is one emitted classification.
type Record struct {
	RunID     string     `json:"run_id"`
	Kind      Kind       `json:"kind"`
	Box       *box.Box   `json:"box,omitempty"`
	Point     *box.Point `json:"point,omitempty"`
	Worker    int        `json:"worker"`
	Timestamp time.Time  `json:"timestamp"`
}

// Label returns the label of the carried box or point.
func (r Record) Label() box.Label {
	switch {
	case r.Box != nil:
		return r.Box.Label
	case r.Point != nil:
		return r.Point.Label
	default:
		return box.LabelUnknown
	}
}

// BoxRecord wraps a classified box.
func BoxRecord(runID string, worker int, b box.Box) Record {
	return Record{RunID: runID, Kind: KindBox, Box: &b, Worker: worker, Timestamp: time.Now()}
}

// PointRecord wraps a witness point.
func PointRecord(runID string, worker int, p box.Point) Record {
	return Record{RunID: runID, Kind: KindPoint, Point: &p, Worker: worker, Timestamp: time.Now()}
}

// ErrMalformedRecord is returned for a record without payload.
var ErrMalformedRecord = errors.New("record carries neither box nor point")

// Apply adds the record's payload to s.
func Apply(s *space.ParameterSpace, r Record) error {
	switch {
	case r.Box != nil:
		return s.AddBox(*r.Box)
	case r.Point != nil:
		return s.AddPoint(*r.Point)
	default:
		return fmt.Errorf("%w: kind %q", ErrMalformedRecord, r.Kind)
	}
}

// Handler consumes records.
type Handler interface {
	Open(ctx context.Context) error
	Process(ctx context.Context, r Record) error
	Close(ctx context.Context) error
}

// Noop discards every record.
type Noop struct{}

func (Noop) Open(context.Context) error            { return nil }
func (Noop) Process(context.Context, Record) error { return nil }
func (Noop) Close(context.Context) error           { return nil }

// Combined fans each call out to several handlers.
//
// Errors from the parts are joined; one failing part does not stop the
// others from seeing the call. Close reaches every part, including parts
// whose Open failed, so each part's Close must accept an unopened handler.
type Combined []Handler

func (c Combined) Open(ctx context.Context) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.Open(ctx))
	}
	return errors.Join(errs...)
}

func (c Combined) Process(ctx context.Context, r Record) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.Process(ctx, r))
	}
	return errors.Join(errs...)
}

func (c Combined) Close(ctx context.Context) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.Close(ctx))
	}
	return errors.Join(errs...)
}

// Func adapts a function to a Handler that only processes.
type Func func(ctx context.Context, r Record) error

func (Func) Open(context.Context) error                    { return nil }
func (f Func) Process(ctx context.Context, r Record) error { return f(ctx, r) }
func (Func) Close(context.Context) error                   { return nil }
