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
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSynth/services/synth/handler"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
)

// progressInterval throttles collector progress logs.
const progressInterval = 5 * time.Second

// Collector is the only caller of the result handler.
//
// Description:
//
//	Consumes every record the workers emit, applies it to the
//	ParameterSpace under construction and forwards it to the handler.
//	Open is called before run, Close once the record channel is closed
//	and drained, so the handler sees Open, then every Process, then
//	Close. Handler errors are logged and counted but never stop the
//	collector.
//
// Thread Safety: Space and HandlerErrors may only be read after Done is closed.
type Collector struct {
	h      handler.Handler
	in     <-chan handler.Record
	logger *slog.Logger
	done   chan struct{}

	space         space.ParameterSpace
	records       int
	handlerErrors int
	progress      rate.Sometimes
}

// NewCollector returns a collector reading from in.
func NewCollector(h handler.Handler, in <-chan handler.Record, logger *slog.Logger) *Collector {
	if h == nil {
		h = handler.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		h:        h,
		in:       in,
		logger:   logger.With(slog.String("component", "collector")),
		done:     make(chan struct{}),
		progress: rate.Sometimes{Interval: progressInterval},
	}
}

// Open opens the handler. A failure here aborts the run before any
// worker starts; the handler is still closed so parts that did open
// release their resources.
func (c *Collector) Open(ctx context.Context) error {
	err := c.h.Open(ctx)
	if err == nil {
		return nil
	}
	if cerr := c.h.Close(context.WithoutCancel(ctx)); cerr != nil {
		c.logger.Warn("result handler close failed", slog.String("error", cerr.Error()))
		return errors.Join(err, cerr)
	}
	return err
}

// Run drains the input channel, then closes the handler and Done.
//
// Handler calls use a context detached from cancellation so results
// computed before a halt are still delivered.
func (c *Collector) Run(ctx context.Context) {
	defer close(c.done)
	hctx := context.WithoutCancel(ctx)
	for r := range c.in {
		c.records++
		if err := handler.Apply(&c.space, r); err != nil {
			c.logger.Warn("malformed record", slog.String("error", err.Error()))
		}
		if err := c.h.Process(hctx, r); err != nil {
			c.handlerErrors++
			recordHandlerError(hctx)
			c.logger.Warn("result handler failed",
				slog.String("kind", string(r.Kind)),
				slog.Int("worker", r.Worker),
				slog.String("error", err.Error()))
		}
		c.progress.Do(func() {
			c.logger.Info("search progress",
				slog.Int("records", c.records),
				slog.Int("true_boxes", len(c.space.TrueBoxes)),
				slog.Int("false_boxes", len(c.space.FalseBoxes)),
				slog.Int("dropped_boxes", len(c.space.DroppedBoxes)))
		})
	}
	if err := c.h.Close(hctx); err != nil {
		c.handlerErrors++
		c.logger.Warn("result handler close failed", slog.String("error", err.Error()))
	}
}

// Done is closed when Run has returned.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Space returns the collected ParameterSpace.
func (c *Collector) Space() space.ParameterSpace { return c.space }

// HandlerErrors returns how many handler calls failed.
func (c *Collector) HandlerErrors() int { return c.handlerErrors }
