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
	"fmt"
	"log/slog"

	"github.com/go-air/gini"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// GiniSolver is the registry name of the SAT-guided backend.
const GiniSolver = "gini"

// DefaultMaxRefinements bounds the skeletons checked per solve.
const DefaultMaxRefinements = 32

// giniSession abstracts each atom to a propositional literal, enumerates
// satisfying skeletons with gini and checks each skeleton's atom
// assignment by sampling. A skeleton that fails the check is blocked and
// the SAT problem re-solved.
type giniSession struct {
	stack
	sampler        *sampler
	maxRefinements int
	logger         *slog.Logger
	model          map[string]float64
}

func newGiniSession(opts Options) (Session, error) {
	s, err := newSampler(opts)
	if err != nil {
		return nil, err
	}
	refinements, err := intOption(opts.Tuning, "max_refinements", DefaultMaxRefinements)
	if err != nil {
		return nil, err
	}
	if refinements < 1 {
		return nil, fmt.Errorf("max_refinements must be positive, got %d", refinements)
	}
	return &giniSession{
		stack:          newStack(),
		sampler:        s,
		maxRefinements: refinements,
		logger:         opts.Logger.With(slog.String("component", "oracle"), slog.String("solver", GiniSolver)),
	}, nil
}

// skeleton is the propositional abstraction of an assertion stack.
type skeleton struct {
	c     *logic.C
	top   z.Lit
	atoms []formula.Formula
	lits  []z.Lit
	index map[string]int
}

func abstract(fs []formula.Formula) *skeleton {
	sk := &skeleton{c: logic.NewC(), index: make(map[string]int)}
	sk.top = sk.c.Lit()
	for _, a := range formula.Atoms(fs...) {
		sk.index[a.String()] = len(sk.atoms)
		sk.atoms = append(sk.atoms, a)
		sk.lits = append(sk.lits, sk.c.Lit())
	}
	return sk
}

func (sk *skeleton) encode(f formula.Formula) (z.Lit, error) {
	switch v := f.(type) {
	case formula.True:
		return sk.top, nil
	case formula.False:
		return sk.top.Not(), nil
	case formula.And:
		lits, err := sk.encodeAll(v.Args)
		if err != nil {
			return z.LitNull, err
		}
		return sk.c.Ands(lits...), nil
	case formula.Or:
		lits, err := sk.encodeAll(v.Args)
		if err != nil {
			return z.LitNull, err
		}
		return sk.c.Ors(lits...), nil
	case formula.Not:
		m, err := sk.encode(v.Arg)
		if err != nil {
			return z.LitNull, err
		}
		return m.Not(), nil
	default:
		i, ok := sk.index[f.String()]
		if !ok {
			return z.LitNull, fmt.Errorf("%w: %T", formula.ErrUnsupported, f)
		}
		return sk.lits[i], nil
	}
}

func (sk *skeleton) encodeAll(fs []formula.Formula) ([]z.Lit, error) {
	out := make([]z.Lit, 0, len(fs))
	for _, f := range fs {
		m, err := sk.encode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *giniSession) Solve(ctx context.Context) (bool, error) {
	s.model = nil
	fs := s.assertions()
	sk := abstract(fs)
	root, err := sk.encode(formula.Conj(fs...))
	if err != nil {
		return false, err
	}

	g := gini.New()
	sk.c.ToCnf(g)
	g.Add(sk.top)
	g.Add(z.LitNull)

	for iter := 0; iter < s.maxRefinements; iter++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		g.Assume(root)
		if g.Solve() != 1 {
			s.logger.Debug("skeleton unsatisfiable", slog.Int("refinements", iter))
			return false, nil
		}

		// Theory check of the literal assignment.
		conj := make([]formula.Formula, len(sk.atoms))
		val := make([]bool, len(sk.atoms))
		for i, a := range sk.atoms {
			val[i] = g.Value(sk.lits[i])
			if val[i] {
				conj[i] = a
			} else {
				conj[i] = formula.Negate(a)
			}
		}
		values, ok, err := s.sampler.find(ctx, formula.Conj(conj...))
		if err != nil {
			return false, err
		}
		if ok {
			s.logger.Debug("solve", slog.Int("depth", s.depth()), slog.Int("refinements", iter))
			s.model = values
			return true, nil
		}

		// Block this assignment.
		for i, m := range sk.lits {
			if val[i] {
				g.Add(m.Not())
			} else {
				g.Add(m)
			}
		}
		g.Add(z.LitNull)
	}
	s.logger.Debug("refinement budget exhausted", slog.Int("max_refinements", s.maxRefinements))
	return false, nil
}

func (s *giniSession) Model() (box.Point, error) {
	if s.model == nil {
		return box.Point{}, ErrNoModel
	}
	return point(s.model), nil
}
