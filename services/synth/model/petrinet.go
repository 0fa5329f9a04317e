// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model describes compartmental dynamical systems and turns them
// into the formulas and simulators consumed by the search.
//
// A model is a Petri net: states (compartments) hold quantities and
// transitions move mass between them at mass-action rates. The encoder
// pairs a model with a schedule and a query to produce the model formula,
// the query formula and the per-box bound constraints.
package model

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidModel is returned when a model fails validation.
	ErrInvalidModel = errors.New("invalid model")

	// ErrInvalidSchedule is returned when timepoints are not increasing.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrInvalidQuery is returned for a malformed query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidProblem is returned when a problem file fails validation.
	ErrInvalidProblem = errors.New("invalid problem")

	// ErrMissingParameter is returned when simulation lacks a parameter value.
	ErrMissingParameter = errors.New("missing parameter value")
)

// -----------------------------------------------------------------------------
// Petri net
// -----------------------------------------------------------------------------

// State is a compartment with its initial quantity.
type State struct {
	Name    string  `yaml:"name" json:"name" validate:"required"`
	Initial float64 `yaml:"initial" json:"initial" validate:"gte=0"`
}

// Rate is a mass-action rate law.
//
// The flow of a transition is Parameter times the product of its input
// states. With Normalize set the product is divided by the total
// population once per input beyond the first, giving the frequency
// dependent form beta*S*I/N.
type Rate struct {
	Parameter string `yaml:"parameter" json:"parameter" validate:"required"`
	Normalize bool   `yaml:"normalize,omitempty" json:"normalize,omitempty"`
}

// Transition moves mass from its inputs to its outputs.
type Transition struct {
	Name    string   `yaml:"name" json:"name" validate:"required"`
	Inputs  []string `yaml:"inputs" json:"inputs"`
	Outputs []string `yaml:"outputs" json:"outputs"`
	Rate    Rate     `yaml:"rate" json:"rate"`
}

// PetriNet is a compartmental model.
type PetriNet struct {
	Name        string       `yaml:"name" json:"name"`
	States      []State      `yaml:"states" json:"states" validate:"required,min=1,dive"`
	Transitions []Transition `yaml:"transitions" json:"transitions" validate:"dive"`
}

// Validate checks that every transition references declared states.
func (m PetriNet) Validate() error {
	known := make(map[string]bool, len(m.States))
	for _, s := range m.States {
		if known[s.Name] {
			return fmt.Errorf("%w: duplicate state %q", ErrInvalidModel, s.Name)
		}
		known[s.Name] = true
	}
	for _, t := range m.Transitions {
		for _, n := range append(append([]string(nil), t.Inputs...), t.Outputs...) {
			if !known[n] {
				return fmt.Errorf("%w: transition %q references unknown state %q", ErrInvalidModel, t.Name, n)
			}
		}
		if t.Rate.Parameter == "" {
			return fmt.Errorf("%w: transition %q has no rate parameter", ErrInvalidModel, t.Name)
		}
		if known[t.Rate.Parameter] {
			return fmt.Errorf("%w: rate parameter %q shadows a state", ErrInvalidModel, t.Rate.Parameter)
		}
	}
	return nil
}

// StateNames returns the state names in declaration order.
func (m PetriNet) StateNames() []string {
	out := make([]string, len(m.States))
	for i, s := range m.States {
		out[i] = s.Name
	}
	return out
}

// RateParameters returns the sorted distinct rate parameter names.
func (m PetriNet) RateParameters() []string {
	set := make(map[string]struct{})
	for _, t := range m.Transitions {
		set[t.Rate.Parameter] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Initial returns the initial quantity of every state.
func (m PetriNet) Initial() map[string]float64 {
	out := make(map[string]float64, len(m.States))
	for _, s := range m.States {
		out[s.Name] = s.Initial
	}
	return out
}

// Flow returns the rate term of one transition.
func (m PetriNet) Flow(t Transition) formula.Term {
	factors := []formula.Term{formula.Var{Name: t.Rate.Parameter}}
	for _, in := range t.Inputs {
		factors = append(factors, formula.Var{Name: in})
	}
	flow := formula.Term(formula.Product{Terms: factors})
	if t.Rate.Normalize && len(t.Inputs) > 1 {
		den := make([]formula.Term, 0, len(t.Inputs)-1)
		for i := 1; i < len(t.Inputs); i++ {
			den = append(den, m.population())
		}
		flow = formula.Quotient{Num: flow, Den: formula.Product{Terms: den}}
	}
	return flow
}

func (m PetriNet) population() formula.Term {
	terms := make([]formula.Term, len(m.States))
	for i, s := range m.States {
		terms[i] = formula.Var{Name: s.Name}
	}
	return formula.Sum{Terms: terms}
}

// Equations returns one derivative per state: inflow from transitions
// that output the state minus outflow from transitions that consume it.
// A state listed twice in a transition counts twice.
func (m PetriNet) Equations() []formula.Equation {
	eqs := make([]formula.Equation, 0, len(m.States))
	for _, s := range m.States {
		var terms []formula.Term
		for _, t := range m.Transitions {
			net := count(t.Outputs, s.Name) - count(t.Inputs, s.Name)
			if net == 0 {
				continue
			}
			flow := m.Flow(t)
			if net != 1 && net != -1 {
				flow = formula.Product{Terms: []formula.Term{formula.Const{Value: float64(abs(net))}, flow}}
			}
			if net < 0 {
				flow = formula.Neg{Term: flow}
			}
			terms = append(terms, flow)
		}
		eqs = append(eqs, formula.Equation{State: s.Name, Rhs: formula.Sum{Terms: terms}})
	}
	return eqs
}

func count(xs []string, x string) int {
	n := 0
	for _, v := range xs {
		if v == x {
			n++
		}
	}
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
