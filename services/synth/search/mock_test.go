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
	"math"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
	"github.com/AleutianAI/AleutianSynth/services/synth/model"
	"github.com/AleutianAI/AleutianSynth/services/synth/oracle"
)

const (
	thresholdSolver = "threshold-mock"
	failingSolver   = "failing-mock"
)

var errMockOracle = errors.New("mock oracle failure")

// thresholdSession answers witness queries for the region beta <= c, where
// c is the value of the asserted query comparison.
//
// A true witness exists iff the box's lower beta bound is at or below c
// and is returned at that bound. A false witness exists iff the closed
// representative of the box's upper beta bound exceeds c.
type thresholdSession struct {
	frames [][]formula.Formula
	model  box.Point
}

func (s *thresholdSession) Push() { s.frames = append(s.frames, nil) }

func (s *thresholdSession) Pop() error {
	if len(s.frames) == 0 {
		return oracle.ErrScopeUnderflow
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *thresholdSession) AddAssertion(f formula.Formula) {
	if len(s.frames) == 0 {
		s.frames = append(s.frames, nil)
	}
	top := len(s.frames) - 1
	s.frames[top] = append(s.frames[top], f)
}

func (s *thresholdSession) Solve(context.Context) (bool, error) {
	var all []formula.Formula
	negated, threshold := false, 0.0
	for _, fr := range s.frames {
		for _, f := range fr {
			switch v := f.(type) {
			case formula.Compare:
				threshold = v.Value
			case formula.Not:
				if c, ok := v.Arg.(formula.Compare); ok {
					negated, threshold = true, c.Value
				}
			}
			all = append(all, f)
		}
	}
	bounds := formula.PositiveBounds(all...)
	values := make(map[string]float64, len(bounds))
	for name, b := range bounds {
		values[name] = b.Lower
	}

	beta := bounds["beta"]
	if negated {
		rep := beta.Upper
		if !beta.ClosedUpper {
			rep = math.Nextafter(beta.Upper, beta.Lower)
		}
		if rep <= threshold {
			return false, nil
		}
		values["beta"] = rep
	} else if beta.Lower > threshold {
		return false, nil
	}
	s.model = box.NewPoint(values, box.LabelUnknown)
	return true, nil
}

func (s *thresholdSession) Model() (box.Point, error) { return s.model, nil }

// failSession fails every solve.
type failSession struct{ thresholdSession }

func (failSession) Solve(context.Context) (bool, error) { return false, errMockOracle }

func init() {
	oracle.Register(thresholdSolver, func(oracle.Options) (oracle.Session, error) {
		return &thresholdSession{}, nil
	})
	oracle.Register(failingSolver, func(oracle.Options) (oracle.Session, error) {
		return &failSession{}, nil
	})
}

// thresholdEncoder encodes the query beta <= threshold.
type thresholdEncoder struct{ threshold float64 }

func (thresholdEncoder) Model() formula.Formula { return formula.True{} }
func (e thresholdEncoder) Query() formula.Formula {
	return formula.Compare{Var: "beta", Op: formula.OpLE, Value: e.threshold}
}
func (thresholdEncoder) Box(b box.Box) formula.Formula { return model.BoxFormula(b) }
func (thresholdEncoder) Simulator() formula.Simulator  { return nil }

// boxProblem is a problem over a fixed domain.
type boxProblem struct {
	domain    box.Box
	threshold float64
}

func (p boxProblem) Name() string { return "threshold" }

func (p boxProblem) Parameters() []model.Parameter {
	var out []model.Parameter
	for _, n := range p.domain.Parameters() {
		iv := p.domain.Bounds[n]
		out = append(out, model.Parameter{Name: n, Lower: iv.Lower, Upper: iv.Upper})
	}
	return out
}

func (p boxProblem) Schedule() model.Schedule {
	return model.Schedule{Timepoints: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}
}

func (p boxProblem) Domain() (box.Box, error) { return p.domain, nil }

func (p boxProblem) NewEncoder() (model.Encoder, error) {
	return thresholdEncoder{threshold: p.threshold}, nil
}

func closedIV(lb, ub float64) interval.Interval {
	return interval.Must(interval.NewClosed(lb, ub))
}

// betaProblem is the single-parameter scenario over beta in [0, 1e-4].
func betaProblem() boxProblem {
	return boxProblem{
		domain: box.MustNew(map[string]interval.Interval{
			"beta":           closedIV(0, 1e-4),
			box.TimestepName: closedIV(0, 10),
		}),
		threshold: 5e-5,
	}
}
