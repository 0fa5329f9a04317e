// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

const (
	// DefaultSamples is the number of random candidates tried per solve.
	DefaultSamples = 64

	// DefaultSeed seeds candidate generation.
	DefaultSeed = 1

	// maxCornerDims caps corner enumeration at 2^maxCornerDims candidates.
	maxCornerDims = 6
)

// sampler searches for a satisfying assignment by evaluation.
//
// Candidates are drawn from the domain implied by the positive bounds of
// the formula: the center first, then the corners, then uniform samples.
// The first candidate under which the formula evaluates true is returned.
type sampler struct {
	sim     formula.Simulator
	samples int
	seed    uint64
}

func newSampler(opts Options) (*sampler, error) {
	samples, err := intOption(opts.Tuning, "samples", DefaultSamples)
	if err != nil {
		return nil, err
	}
	seed, err := intOption(opts.Tuning, "seed", DefaultSeed)
	if err != nil {
		return nil, err
	}
	if samples < 0 {
		return nil, fmt.Errorf("samples must be non-negative, got %d", samples)
	}
	return &sampler{sim: opts.Simulator, samples: samples, seed: uint64(seed)}, nil
}

// dim is one sampled variable.
type dim struct {
	name     string
	lo, hi   float64 // inclusive range of candidate values
	discrete bool
}

// find returns a satisfying assignment of f, if one is found.
func (s *sampler) find(ctx context.Context, f formula.Formula) (map[string]float64, bool, error) {
	dims, ok := domain(f)
	if !ok {
		return nil, false, nil
	}
	rng := rand.New(rand.NewPCG(s.seed, uint64(len(dims))))

	try := func(values map[string]float64) (bool, error) {
		env := &lazyEnv{values: values, sim: s.sim}
		return formula.Evaluate(f, env)
	}

	var last error
	for c := range candidates(dims, s.samples, rng) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		ok, err := try(c)
		if err != nil {
			if isFatal(err) {
				return nil, false, err
			}
			last = err
			continue
		}
		if ok {
			return c, true, nil
		}
	}
	if last != nil {
		return nil, false, last
	}
	return nil, false, nil
}

// isFatal reports errors that no other candidate can avoid.
func isFatal(err error) bool {
	return errors.Is(err, ErrNoSimulator)
}

// domain returns the sampled dimensions of f in name order. It reports
// false when some forced bound admits no value.
func domain(f formula.Formula) ([]dim, bool) {
	bounds := formula.PositiveBounds(f)
	names := make([]string, 0, len(bounds))
	for n := range bounds {
		names = append(names, n)
	}
	sort.Strings(names)

	dims := make([]dim, 0, len(names))
	for _, n := range names {
		b := bounds[n]
		d := dim{name: n, lo: b.Lower, hi: b.Upper}
		closed := b.ClosedUpper || b.Lower == b.Upper
		if n == formula.TimestepVar {
			d.discrete = true
			d.lo = math.Ceil(b.Lower)
			d.hi = math.Floor(b.Upper)
			if !closed && d.hi == b.Upper {
				d.hi--
			}
		} else if !closed {
			d.hi = math.Nextafter(b.Upper, b.Lower)
		}
		if d.hi < d.lo || math.IsInf(d.lo, 0) || math.IsInf(d.hi, 0) {
			return nil, false
		}
		dims = append(dims, d)
	}
	return dims, true
}

// candidates yields the center, the corners and then random points.
func candidates(dims []dim, samples int, rng *rand.Rand) iter.Seq[map[string]float64] {
	return func(yield func(map[string]float64) bool) {
		center := make(map[string]float64, len(dims))
		for _, d := range dims {
			center[d.name] = d.snap(d.lo + (d.hi-d.lo)/2)
		}
		if !yield(center) {
			return
		}

		if len(dims) <= maxCornerDims {
			for mask := 0; mask < 1<<len(dims); mask++ {
				c := make(map[string]float64, len(dims))
				for i, d := range dims {
					if mask&(1<<i) != 0 {
						c[d.name] = d.hi
					} else {
						c[d.name] = d.lo
					}
				}
				if !yield(c) {
					return
				}
			}
		}

		for i := 0; i < samples; i++ {
			c := make(map[string]float64, len(dims))
			for _, d := range dims {
				c[d.name] = d.sample(rng)
			}
			if !yield(c) {
				return
			}
		}
	}
}

func (d dim) snap(v float64) float64 {
	if d.discrete {
		return math.Round(v)
	}
	return v
}

func (d dim) sample(rng *rand.Rand) float64 {
	if d.discrete {
		return d.lo + float64(rng.IntN(int(d.hi-d.lo)+1))
	}
	return d.lo + rng.Float64()*(d.hi-d.lo)
}

// lazyEnv simulates on first trajectory access.
type lazyEnv struct {
	values map[string]float64
	sim    formula.Simulator
	traj   formula.Trajectory
	err    error
	done   bool
}

func (e *lazyEnv) Value(name string) (float64, bool) {
	v, ok := e.values[name]
	return v, ok
}

func (e *lazyEnv) Trajectory() (formula.Trajectory, error) {
	if e.sim == nil {
		return nil, ErrNoSimulator
	}
	if !e.done {
		e.traj, e.err = e.sim.Simulate(e.values)
		e.done = true
	}
	return e.traj, e.err
}

// point converts an assignment into an unlabeled witness.
func point(values map[string]float64) box.Point {
	return box.NewPoint(values, box.LabelUnknown)
}

// intOption reads an integer tuning option that may have been decoded
// from YAML or JSON.
func intOption(opts map[string]any, key string, def int) (int, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("option %s: %v is not an integer", key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("option %s: unsupported type %T", key, raw)
	}
}
