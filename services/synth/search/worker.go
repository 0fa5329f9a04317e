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
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
	"github.com/AleutianAI/AleutianSynth/services/synth/halt"
	"github.com/AleutianAI/AleutianSynth/services/synth/handler"
	"github.com/AleutianAI/AleutianSynth/services/synth/model"
	"github.com/AleutianAI/AleutianSynth/services/synth/oracle"
)

// ErrWitnessOutsideBox is returned when an oracle model violates the box
// it was asked about.
var ErrWitnessOutsideBox = errors.New("witness lies outside the box")

// worker runs the box classification loop against one oracle session.
//
// Thread Safety: Owned by a single goroutine.
type worker struct {
	id      int
	ep      *Episode
	cfg     Config
	enc     model.Encoder
	session oracle.Session
	out     chan<- handler.Record
	logger  *slog.Logger

	// frames mirrors the session's assertion stack for SMT-LIB dumps.
	frames [][]formula.Formula
}

func newWorker(id int, ep *Episode, cfg Config, enc model.Encoder, session oracle.Session, out chan<- handler.Record, logger *slog.Logger) *worker {
	return &worker{
		id:      id,
		ep:      ep,
		cfg:     cfg,
		enc:     enc,
		session: session,
		out:     out,
		logger:  logger.With(slog.Int("worker", id)),
		frames:  [][]formula.Formula{nil},
	}
}

// run classifies boxes until the coordinator declares termination or
// ctx is done. Halting is only observed between boxes.
func (w *worker) run(ctx context.Context) error {
	w.push()
	w.assert(w.enc.Model())
	defer w.pop()

	// Oracle calls finish even after a halt so the current box unwinds cleanly.
	solveCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return nil
		}
		b, ok := w.ep.Queue.Pop(ctx, w.cfg.QueueTimeout)
		if !ok {
			if w.ep.Coord.Idle(ctx, w.id) {
				w.logger.Debug("worker exiting")
				return nil
			}
			continue
		}
		w.expand(solveCtx, b)
		halt.ReportProgress(ctx)
	}
}

// expand classifies one box, emitting it or enqueueing its children.
func (w *worker) expand(ctx context.Context, b box.Box) {
	w.push()
	defer w.pop()
	w.assert(w.enc.Box(b))

	tp, ok, err := w.witness(ctx, b, box.LabelTrue)
	if err != nil {
		w.fail(ctx, b, oracle.QueryTruePoint, err)
		return
	}
	if !ok {
		w.emitBox(ctx, b, box.LabelFalse)
		return
	}

	fp, ok, err := w.witness(ctx, b, box.LabelFalse)
	if err != nil {
		w.fail(ctx, b, oracle.QueryFalsePoint, err)
		return
	}
	if !ok {
		w.emitBox(ctx, b, box.LabelTrue)
		return
	}

	if b.Width(w.cfg.Normalize) <= w.cfg.Tolerance {
		w.emitBox(ctx, b, box.LabelDropped)
		return
	}

	b = b.AddPoint(tp).AddPoint(fp)
	res, err := b.Split([][]box.Point{b.TruePoints(), b.FalsePoints()}, nil, w.cfg.Normalize)
	if err != nil {
		w.logger.Warn("mixed box cannot be split",
			slog.String("box", b.Key()),
			slog.String("error", err.Error()))
		w.emitBox(ctx, b, box.LabelDropped)
		return
	}
	w.ep.Queue.PushAll(res.Lower, res.Upper)
	w.ep.Stats.Splits.Add(1)
	recordSplit(ctx)
	w.ep.Coord.Notify(w.id)

	w.logger.Debug("split box",
		slog.String("dimension", res.Dimension),
		slog.Float64("midpoint", res.Midpoint),
		slog.Bool("witness_guided", res.WitnessGuided))
}

// witness finds a point in b labeled l, from the cache or the oracle.
//
// A true witness satisfies the model and the query; a false witness
// satisfies the model and the negated query.
func (w *worker) witness(ctx context.Context, b box.Box, l box.Label) (box.Point, bool, error) {
	if p, ok := w.ep.CachedPoint(b, l); ok {
		w.ep.Stats.CacheHits.Add(1)
		return p, true, nil
	}

	kind, q := oracle.QueryTruePoint, w.enc.Query()
	if l == box.LabelFalse {
		kind, q = oracle.QueryFalsePoint, formula.Negate(q)
	}

	w.push()
	defer w.pop()
	w.assert(q)

	if dir := w.cfg.SaveSMTLIB; dir != "" {
		if err := oracle.DumpSMTLIB(dir, kind, w.ep.NextIteration(), w.assertions()); err != nil {
			w.logger.Warn("failed to save SMT-LIB query", slog.String("error", err.Error()))
		}
	}

	w.ep.Stats.OracleCalls.Add(1)
	start := time.Now()
	sat, err := w.session.Solve(ctx)
	recordOracle(ctx, kind, time.Since(start), err)
	if err != nil {
		return box.Point{}, false, err
	}
	if !sat {
		return box.Point{}, false, nil
	}

	p, err := w.session.Model()
	if err != nil {
		return box.Point{}, false, err
	}
	p = p.WithLabel(l)
	p.Schedule = b.Schedule
	if !b.ContainsPoint(p) {
		return box.Point{}, false, fmt.Errorf("%w: %s not in %s", ErrWitnessOutsideBox, p, b)
	}

	w.ep.AddPoint(p)
	w.out <- handler.PointRecord(w.ep.ID, w.id, p)
	return p, true, nil
}

// fail drops a box whose oracle call failed. The box is not retried.
func (w *worker) fail(ctx context.Context, b box.Box, kind oracle.QueryKind, err error) {
	w.ep.Stats.OracleFailures.Add(1)
	w.logger.Error("oracle failed",
		slog.String("box", b.Key()),
		slog.String("query", string(kind)),
		slog.String("error", err.Error()))
	w.emitBox(ctx, b, box.LabelDropped)
}

func (w *worker) emitBox(ctx context.Context, b box.Box, l box.Label) {
	labeled, err := b.WithLabel(l)
	if err != nil {
		w.logger.Error("cannot label box", slog.String("box", b.Key()), slog.String("error", err.Error()))
		return
	}
	w.ep.Stats.countBox(l)
	recordBox(ctx, l)
	w.out <- handler.BoxRecord(w.ep.ID, w.id, labeled)
}

// -----------------------------------------------------------------------------
// Scopes
// -----------------------------------------------------------------------------

func (w *worker) push() {
	w.session.Push()
	w.frames = append(w.frames, nil)
}

func (w *worker) pop() {
	if err := w.session.Pop(); err != nil {
		w.logger.Error("oracle scope pop failed", slog.String("error", err.Error()))
	}
	if len(w.frames) > 1 {
		w.frames = w.frames[:len(w.frames)-1]
	}
}

func (w *worker) assert(f formula.Formula) {
	w.session.AddAssertion(f)
	top := len(w.frames) - 1
	w.frames[top] = append(w.frames[top], f)
}

func (w *worker) assertions() []formula.Formula {
	var out []formula.Formula
	for _, fr := range w.frames {
		out = append(out, fr...)
	}
	return out
}
