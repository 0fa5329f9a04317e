// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package halt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Controller owns the halt signal of one search run.
//
// # Description
//
// Wraps a parent context with a cancellable run context. The run is
// halted by Halt, by the halt file appearing, by the stall detector, or
// by cancellation of the parent. The first reason wins.
//
// # Thread Safety
//
// Safe for concurrent use.
type Controller struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	halted       atomic.Bool
	reason       Reason
	reasonMu     sync.RWMutex
	lastProgress atomic.Int64 // Unix nano timestamp

	config  Config
	trigger *FileTrigger
	metrics *Metrics
	logger  *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewController creates a controller and starts its monitors.
//
// # Inputs
//
//   - parent: Parent context. Must not be nil.
//   - config: Halt configuration. Defaults are applied.
//   - logger: If nil, uses slog.Default().
//
// # Outputs
//
//   - *Controller: Running controller. Call Close when the run ends.
//   - error: ErrNilContext, ErrInvalidConfig or a watcher error.
func NewController(parent context.Context, config Config, logger *slog.Logger) (*Controller, error) {
	if parent == nil {
		return nil, ErrNilContext
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		config:  config,
		metrics: DefaultMetrics(),
		logger:  logger.With(slog.String("component", "halt")),
		stopCh:  make(chan struct{}),
	}
	ctx, cancel := context.WithCancelCause(parent)
	c.ctx = WithProgressReporter(ctx, c.ReportProgress)
	c.cancel = cancel
	c.lastProgress.Store(time.Now().UnixNano())

	if config.HaltFile != "" {
		trigger, err := NewFileTrigger(config.HaltFile, func() {
			c.Halt(Reason{Kind: KindFile, Message: config.HaltFile})
		}, logger)
		if err != nil {
			cancel(err)
			return nil, err
		}
		if err := trigger.Start(); err != nil {
			trigger.Stop()
			cancel(err)
			return nil, err
		}
		c.trigger = trigger
		if trigger.Exists() {
			c.Halt(Reason{Kind: KindFile, Message: config.HaltFile})
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			trigger.Run(ctx)
		}()
	}

	if config.StallTimeout > 0 {
		c.wg.Add(1)
		go c.detectStalls()
	}

	c.wg.Add(1)
	go c.watchParent(parent)

	return c, nil
}

// Context returns the run context. It carries a progress reporter, so
// ReportProgress(ctx) on it or its children feeds the stall detector.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Halt stops the run with reason. Only the first call has an effect.
func (c *Controller) Halt(reason Reason) {
	if !c.halted.CompareAndSwap(false, true) {
		return
	}
	if reason.Timestamp.IsZero() {
		reason.Timestamp = time.Now()
	}
	c.reasonMu.Lock()
	c.reason = reason
	c.reasonMu.Unlock()

	c.metrics.HaltTotal.WithLabelValues(reason.Kind.String()).Inc()
	c.logger.Info("halting search", slog.String("reason", reason.String()))
	c.cancel(ErrHalted)
}

// Halted reports whether the run was halted and why.
func (c *Controller) Halted() (Reason, bool) {
	if !c.halted.Load() {
		return Reason{}, false
	}
	c.reasonMu.RLock()
	defer c.reasonMu.RUnlock()
	return c.reason, true
}

// ReportProgress updates the last progress timestamp.
func (c *Controller) ReportProgress() {
	c.lastProgress.Store(time.Now().UnixNano())
	c.metrics.ProgressReportsTotal.Inc()
}

// LastProgress returns the time of the last progress report.
func (c *Controller) LastProgress() time.Time {
	return time.Unix(0, c.lastProgress.Load())
}

func (c *Controller) detectStalls() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(c.LastProgress())
			if elapsed > c.config.StallTimeout {
				c.logger.Warn("stall detected",
					slog.Duration("elapsed", elapsed),
					slog.Duration("threshold", c.config.StallTimeout),
				)
				c.metrics.StallDetectedTotal.Inc()
				c.Halt(Reason{Kind: KindStall, Message: "no progress within " + c.config.StallTimeout.String()})
				return
			}
		}
	}
}

func (c *Controller) watchParent(parent context.Context) {
	defer c.wg.Done()
	select {
	case <-c.stopCh:
	case <-parent.Done():
		c.Halt(Reason{Kind: KindParent, Message: context.Cause(parent).Error()})
	}
}

// Close stops the monitors and releases the run context. Safe to call
// multiple times.
func (c *Controller) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.trigger != nil {
			err = c.trigger.Stop()
		}
		c.wg.Wait()
		c.cancel(context.Canceled)
	})
	return err
}
