// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"sort"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// Encoder turns a problem into oracle assertions.
//
// Description:
//
//	The search asserts Model() once per worker session, then Box(b) and
//	either Query() or its negation inside a scope per box. Simulator is
//	handed to oracle backends that decide Dynamics and state comparisons
//	by simulation.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Encoder interface {
	Model() formula.Formula
	Query() formula.Formula
	Box(b box.Box) formula.Formula
	Simulator() formula.Simulator
}

// Problem is a model paired with the parameter domain to synthesize over.
type Problem interface {
	// Name identifies the problem in logs and stored runs.
	Name() string

	// Parameters returns the declared parameters in a stable order.
	Parameters() []Parameter

	// Schedule returns the evaluation timepoints.
	Schedule() Schedule

	// Domain returns the initial box, including the timestep dimension.
	Domain() (box.Box, error)

	// NewEncoder returns an encoder bound to this problem.
	NewEncoder() (Encoder, error)
}

// petriEncoder encodes a Petri net problem.
type petriEncoder struct {
	model formula.Formula
	query formula.Formula
	sim   *EulerSimulator
}

func newPetriEncoder(net PetriNet, schedule Schedule, q Query, assumptions []formula.Formula) *petriEncoder {
	dyn := formula.Dynamics{
		Model:      net.Name,
		Equations:  net.Equations(),
		Initial:    net.Initial(),
		Timepoints: append([]float64(nil), schedule.Timepoints...),
	}
	return &petriEncoder{
		model: formula.Conj(append([]formula.Formula{dyn}, assumptions...)...),
		query: q.Formula(),
		sim:   NewEulerSimulator(net, schedule),
	}
}

func (e *petriEncoder) Model() formula.Formula       { return e.model }
func (e *petriEncoder) Query() formula.Formula       { return e.query }
func (e *petriEncoder) Simulator() formula.Simulator { return e.sim }

// Box encodes b as one bound per dimension, in name order.
func (e *petriEncoder) Box(b box.Box) formula.Formula {
	return BoxFormula(b)
}

// BoxFormula is the conjunction of one Bound per dimension of b.
func BoxFormula(b box.Box) formula.Formula {
	names := make([]string, 0, len(b.Bounds))
	for n := range b.Bounds {
		names = append(names, n)
	}
	sort.Strings(names)
	fs := make([]formula.Formula, 0, len(names))
	for _, n := range names {
		iv := b.Bounds[n]
		fs = append(fs, formula.Bound{Var: n, Lower: iv.Lower, Upper: iv.Upper, ClosedUpper: iv.ClosedUpper})
	}
	return formula.Conj(fs...)
}
