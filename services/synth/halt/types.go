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
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("invalid halt configuration")

	// ErrNilContext is returned when a nil parent context is provided.
	ErrNilContext = errors.New("context must not be nil")

	// ErrHalted is the cancellation cause of a halted run.
	ErrHalted = errors.New("search halted")
)

// -----------------------------------------------------------------------------
// Enums
// -----------------------------------------------------------------------------

// Kind indicates why a run was halted.
type Kind int

const (
	// KindUser indicates an explicit Halt call or an interrupt signal.
	KindUser Kind = iota

	// KindFile indicates the halt file appeared.
	KindFile

	// KindStall indicates no progress was reported within the stall timeout.
	KindStall

	// KindParent indicates the parent context was cancelled.
	KindParent
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindFile:
		return "file"
	case KindStall:
		return "stall"
	case KindParent:
		return "parent"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config configures a Controller.
type Config struct {
	// HaltFile halts the run when a file appears at this path. Empty disables.
	HaltFile string

	// StallTimeout halts the run when no progress is reported for this long.
	// Zero disables stall detection.
	StallTimeout time.Duration

	// CheckInterval is how often the stall detector checks for progress.
	// Default: StallTimeout / 4, at least 10 milliseconds.
	CheckInterval time.Duration
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StallTimeout < 0 {
		return fmt.Errorf("%w: stall timeout must be non-negative", ErrInvalidConfig)
	}
	if c.CheckInterval < 0 {
		return fmt.Errorf("%w: check interval must be non-negative", ErrInvalidConfig)
	}
	return nil
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.StallTimeout > 0 && c.CheckInterval == 0 {
		c.CheckInterval = c.StallTimeout / 4
		if c.CheckInterval < 10*time.Millisecond {
			c.CheckInterval = 10 * time.Millisecond
		}
	}
}

// Reason describes why a run halted.
type Reason struct {
	// Kind indicates the category of halt.
	Kind Kind

	// Message provides a human-readable description.
	Message string

	// Timestamp is when the halt was triggered.
	Timestamp time.Time
}

// String renders the reason for logs.
func (r Reason) String() string {
	if r.Message == "" {
		return r.Kind.String()
	}
	return r.Kind.String() + ": " + r.Message
}

// -----------------------------------------------------------------------------
// Context helpers
// -----------------------------------------------------------------------------

type contextKey int

const progressReporterKey contextKey = iota

// ProgressReporter records that the run advanced.
type ProgressReporter func()

// ReportProgress notifies the controller owning ctx, if any, that work
// advanced. It is a no-op for contexts without a controller.
//
// Example:
//
//	for {
//	    b, ok := queue.Pop(ctx, timeout)
//	    ...
//	    halt.ReportProgress(ctx)
//	}
func ReportProgress(ctx context.Context) {
	if reporter, ok := ctx.Value(progressReporterKey).(ProgressReporter); ok {
		reporter()
	}
}

// WithProgressReporter attaches reporter to ctx.
func WithProgressReporter(ctx context.Context, reporter ProgressReporter) context.Context {
	return context.WithValue(ctx, progressReporterKey, reporter)
}
