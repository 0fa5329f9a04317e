// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search synthesizes parameter regions by box splitting.
//
// A run decomposes the problem's domain into initial boxes and hands them
// to a pool of workers. Each worker asks its own oracle session for a
// witness where the query holds and one where it fails. A box without a
// true witness is false, a box without a false witness is true, and a
// mixed box is split in two and re-queued until it is narrower than the
// tolerance. A single collector turns the emitted records into the
// resulting ParameterSpace.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/handler"
	"github.com/AleutianAI/AleutianSynth/services/synth/model"
	"github.com/AleutianAI/AleutianSynth/services/synth/oracle"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
	"github.com/AleutianAI/AleutianSynth/services/synth/telemetry"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when a search configuration is unusable.
	ErrInvalidConfig = errors.New("invalid search config")

	// ErrCollectorTimeout is returned when the collector does not finish
	// within WaitTimeout after the workers exit.
	ErrCollectorTimeout = errors.New("result collector did not finish in time")
)

// Config controls one search run.
type Config struct {
	// Tolerance is the box width at or below which a mixed box is no
	// longer split and is emitted as dropped.
	Tolerance float64

	// Normalize compares widths relative to each dimension's original width.
	Normalize bool

	// QueueTimeout bounds how long a worker waits for work before
	// entering the termination protocol.
	QueueTimeout time.Duration

	// NumberOfProcesses is the worker count.
	NumberOfProcesses int

	// WaitTimeout bounds the collector drain after the workers exit.
	// Zero waits without bound.
	WaitTimeout time.Duration

	// NumInitialBoxes is how many boxes the domain is cut into up front.
	NumInitialBoxes int

	// Solver names the oracle backend.
	Solver string

	// SolverOptions is passed to the backend unchanged.
	SolverOptions map[string]any

	// SaveSMTLIB, when set, is a directory receiving one SMT-LIB file per query.
	SaveSMTLIB string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Tolerance:         1e-3,
		QueueTimeout:      time.Second,
		NumberOfProcesses: 1,
		NumInitialBoxes:   1,
		Solver:            oracle.SamplingSolver,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("%w: tolerance must be > 0", ErrInvalidConfig)
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("%w: queue_timeout must be > 0", ErrInvalidConfig)
	}
	if c.NumberOfProcesses < 1 {
		return fmt.Errorf("%w: number_of_processes must be >= 1", ErrInvalidConfig)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("%w: wait_timeout must be >= 0", ErrInvalidConfig)
	}
	if c.NumInitialBoxes < 1 {
		return fmt.Errorf("%w: num_initial_boxes must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// Options carries the collaborators of a run.
type Options struct {
	// Handler receives every record. Nil means handler.Noop.
	Handler handler.Handler

	// Logger for the run. If nil, uses slog.Default().
	Logger *slog.Logger

	// RunID names the run in records. Empty means a generated id.
	RunID string
}

// Result is the outcome of a run.
type Result struct {
	// RunID identifies the run in records.
	RunID string

	// Space is the synthesized parameter space.
	Space space.ParameterSpace

	// Stats are the final episode counters.
	Stats StatsSnapshot

	// Halted is true when the run was cancelled before the queue emptied.
	Halted bool

	// HandlerErrors counts failed handler calls.
	HandlerErrors int

	// Duration is the wall time of the run.
	Duration time.Duration

	// Done is closed once the collector has closed the handler. After
	// ErrCollectorTimeout it is still open; callers owning resources the
	// handler writes to wait on it before releasing them.
	Done <-chan struct{}
}

// Search runs box search over one problem.
//
// Thread Safety: Run may be called concurrently; each call is an independent run.
type Search struct {
	problem model.Problem
	cfg     Config
	factory oracle.Factory
	opts    Options

	// logger carries the problem only. Components add their own tag.
	logger *slog.Logger
}

// New prepares a search.
//
// Description:
//
//	Validates cfg and resolves the oracle backend. Every configuration
//	error is reported here, before any episode state exists.
//
// Outputs:
//
//	*Search - Ready to Run.
//	error - ErrInvalidConfig or oracle.ErrUnknownSolver.
func New(problem model.Problem, cfg Config, opts Options) (*Search, error) {
	if problem == nil {
		return nil, fmt.Errorf("%w: problem is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, err := oracle.Lookup(cfg.Solver)
	if err != nil {
		return nil, err
	}
	if opts.Handler == nil {
		opts.Handler = handler.Noop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{
		problem: problem,
		cfg:     cfg,
		factory: factory,
		opts:    opts,
		logger:  logger.With(slog.String("problem", problem.Name())),
	}, nil
}

// Run executes the search until the queue is exhausted or ctx is done.
//
// Description:
//
//	Builds the initial boxes and one oracle session per worker, opens the
//	handler, then runs the workers. When they exit, boxes still queued
//	(only after a halt) are emitted as unknown, and the collector is
//	given WaitTimeout to drain and close the handler.
//
// Inputs:
//
//	ctx - Cancellation halts the run between boxes.
//
// Outputs:
//
//	Result - The synthesized space. Halted is set when ctx ended the run.
//	error - Setup failures, handler Open failures, worker failures or
//	ErrCollectorTimeout.
func (s *Search) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	ctx, span := startRunSpan(ctx, s.problem.Name(), s.cfg.NumberOfProcesses)
	defer span.End()
	fail := func(err error) error {
		telemetry.RecordError(span, err)
		return err
	}

	domain, err := s.problem.Domain()
	if err != nil {
		return Result{}, fail(fmt.Errorf("building domain: %w", err))
	}
	enc, err := s.problem.NewEncoder()
	if err != nil {
		return Result{}, fail(fmt.Errorf("building encoder: %w", err))
	}

	workers := s.cfg.NumberOfProcesses
	sessions := make([]oracle.Session, workers)
	for i := range sessions {
		sessions[i], err = s.factory(oracle.Options{
			Simulator: enc.Simulator(),
			Tuning:    s.cfg.SolverOptions,
			Logger:    s.logger,
		})
		if err != nil {
			return Result{}, fail(fmt.Errorf("creating oracle session %d: %w", i, err))
		}
	}

	ep := NewEpisode(workers)
	if s.opts.RunID != "" {
		ep.ID = s.opts.RunID
	}
	runBase := telemetry.LoggerWithTrace(ctx, s.logger).With(slog.String("run_id", ep.ID))
	logger := runBase.With(slog.String("component", "search"))
	initial := Decompose(domain, s.cfg.NumInitialBoxes, s.cfg.Normalize)
	ep.Queue.PushAll(initial...)

	out := make(chan handler.Record, 4*workers)
	col := NewCollector(s.opts.Handler, out, runBase)
	if err := col.Open(ctx); err != nil {
		return Result{}, fail(fmt.Errorf("opening result handler: %w", err))
	}
	go col.Run(ctx)

	logger.Info("search started",
		slog.Int("workers", workers),
		slog.Int("initial_boxes", len(initial)),
		slog.String("solver", s.cfg.Solver),
		slog.Float64("tolerance", s.cfg.Tolerance))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		w := newWorker(i, ep, s.cfg, enc, sessions[i], out, logger)
		g.Go(func() error { return w.run(gctx) })
	}
	werr := g.Wait()

	for _, b := range ep.Queue.Drain() {
		ep.Stats.countBox(box.LabelUnknown)
		out <- handler.BoxRecord(ep.ID, -1, b)
	}
	close(out)

	halted := !ep.Coord.Done()
	stats := ep.Stats.Snapshot()
	res := Result{RunID: ep.ID, Stats: stats, Halted: halted, Done: col.Done()}

	if err := s.awaitCollector(col); err != nil {
		logger.Error("result collector still running", slog.Duration("wait_timeout", s.cfg.WaitTimeout))
		return res, fail(errors.Join(werr, err))
	}
	res.Space = col.Space()
	res.HandlerErrors = col.HandlerErrors()
	res.Duration = time.Since(start)

	setRunSpanResult(span, stats, halted)
	recordRun(ctx, res.Duration, halted)
	logger.Info("search finished",
		slog.Int64("true_boxes", stats.TrueBoxes),
		slog.Int64("false_boxes", stats.FalseBoxes),
		slog.Int64("dropped_boxes", stats.DroppedBoxes),
		slog.Int64("unknown_boxes", stats.UnknownBoxes),
		slog.Int64("splits", stats.Splits),
		slog.Int64("oracle_calls", stats.OracleCalls),
		slog.Bool("halted", halted),
		slog.Duration("duration", res.Duration))

	if werr != nil {
		return res, fail(fmt.Errorf("search worker failed: %w", werr))
	}
	return res, nil
}

func (s *Search) awaitCollector(col *Collector) error {
	if s.cfg.WaitTimeout <= 0 {
		<-col.Done()
		return nil
	}
	timer := time.NewTimer(s.cfg.WaitTimeout)
	defer timer.Stop()
	select {
	case <-col.Done():
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrCollectorTimeout, s.cfg.WaitTimeout)
	}
}

// Decompose cuts b into n boxes by repeated geometric splits, oldest
// box first. Fewer boxes are returned when b cannot be split further.
func Decompose(b box.Box, n int, normalize bool) []box.Box {
	boxes := []box.Box{b}
	for len(boxes) < n {
		res, err := boxes[0].Split(nil, nil, normalize)
		if err != nil {
			break
		}
		boxes = append(boxes[1:], res.Lower, res.Upper)
	}
	return boxes
}
