// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package formula defines the closed set of formulas and arithmetic terms
// exchanged between the model encoder and the oracle backends.
//
// Formulas are a sealed sum type. Every consumer switches exhaustively over
// the variants; adding a variant is a compile-time visible change.
//
// Atoms (Bound, Compare, Dynamics) are the only variants with theory
// meaning. And, Or and Not are boolean structure; True and False are
// constants.
package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Formula is a boolean formula over parameters, the timestep and model state.
type Formula interface {
	fmt.Stringer
	isFormula()
}

// True is the constant true formula.
type True struct{}

// False is the constant false formula.
type False struct{}

// And is the conjunction of its arguments. An empty And is true.
type And struct{ Args []Formula }

// Or is the disjunction of its arguments. An empty Or is false.
type Or struct{ Args []Formula }

// Not negates its argument.
type Not struct{ Arg Formula }

// Bound constrains one variable to an interval: Lower <= Var < Upper, or
// Lower <= Var <= Upper when ClosedUpper is set.
type Bound struct {
	Var         string
	Lower       float64
	Upper       float64
	ClosedUpper bool
}

// Op is a comparison operator.
type Op string

const (
	// OpLE is less-than-or-equal.
	OpLE Op = "<="

	// OpGE is greater-than-or-equal.
	OpGE Op = ">="
)

// Compare requires a state variable to satisfy Var Op Value at every step
// from zero up to and including the assignment's timestep.
type Compare struct {
	Var   string
	Op    Op
	Value float64
}

// Equation defines the time derivative of one state variable.
type Equation struct {
	State string
	Rhs   Term
}

// Dynamics asserts that the state trajectory follows the model equations,
// discretized forward in time over Timepoints from Initial.
type Dynamics struct {
	Model      string
	Equations  []Equation
	Initial    map[string]float64
	Timepoints []float64
}

func (True) isFormula()     {}
func (False) isFormula()    {}
func (And) isFormula()      {}
func (Or) isFormula()       {}
func (Not) isFormula()      {}
func (Bound) isFormula()    {}
func (Compare) isFormula()  {}
func (Dynamics) isFormula() {}

func (True) String() string  { return "true" }
func (False) String() string { return "false" }

func (f And) String() string { return joinArgs("and", f.Args) }
func (f Or) String() string  { return joinArgs("or", f.Args) }
func (f Not) String() string { return "(not " + f.Arg.String() + ")" }

func (f Bound) String() string {
	closing := ")"
	if f.ClosedUpper || f.Lower == f.Upper {
		closing = "]"
	}
	return fmt.Sprintf("(%s in [%g, %g%s)", f.Var, f.Lower, f.Upper, closing)
}

func (f Compare) String() string {
	return fmt.Sprintf("(%s %s %g)", f.Var, f.Op, f.Value)
}

func (f Dynamics) String() string {
	return fmt.Sprintf("(dynamics %s)", f.Model)
}

func joinArgs(op string, args []Formula) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return "(" + op + " " + strings.Join(parts, " ") + ")"
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

// Conj builds a flattened conjunction, dropping True and collapsing to
// False when any argument is False.
func Conj(args ...Formula) Formula {
	var out []Formula
	for _, a := range args {
		switch v := a.(type) {
		case nil, True:
		case False:
			return False{}
		case And:
			flat := Conj(v.Args...)
			switch fv := flat.(type) {
			case False:
				return False{}
			case And:
				out = append(out, fv.Args...)
			case True:
			default:
				out = append(out, fv)
			}
		default:
			out = append(out, a)
		}
	}
	switch len(out) {
	case 0:
		return True{}
	case 1:
		return out[0]
	default:
		return And{Args: out}
	}
}

// Disj builds a flattened disjunction, dropping False and collapsing to
// True when any argument is True.
func Disj(args ...Formula) Formula {
	var out []Formula
	for _, a := range args {
		switch v := a.(type) {
		case nil, False:
		case True:
			return True{}
		case Or:
			out = append(out, v.Args...)
		default:
			out = append(out, a)
		}
	}
	switch len(out) {
	case 0:
		return False{}
	case 1:
		return out[0]
	default:
		return Or{Args: out}
	}
}

// Negate returns the negation of f, removing a double negation.
func Negate(f Formula) Formula {
	switch v := f.(type) {
	case True:
		return False{}
	case False:
		return True{}
	case Not:
		return v.Arg
	default:
		return Not{Arg: f}
	}
}

// -----------------------------------------------------------------------------
// Traversal
// -----------------------------------------------------------------------------

// IsAtom reports whether f is a theory atom.
func IsAtom(f Formula) bool {
	switch f.(type) {
	case Bound, Compare, Dynamics:
		return true
	default:
		return false
	}
}

// Atoms returns the distinct atoms of f in first-seen order, keyed by
// their String form.
func Atoms(fs ...Formula) []Formula {
	seen := make(map[string]struct{})
	var out []Formula
	var walk func(Formula)
	walk = func(f Formula) {
		switch v := f.(type) {
		case True, False:
		case And:
			for _, a := range v.Args {
				walk(a)
			}
		case Or:
			for _, a := range v.Args {
				walk(a)
			}
		case Not:
			walk(v.Arg)
		case Bound, Compare, Dynamics:
			k := v.String()
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, v)
			}
		}
	}
	for _, f := range fs {
		walk(f)
	}
	return out
}

// PositiveBounds collects the Bound atoms that must hold for f to hold,
// that is bounds reachable through conjunctions only. Bounds on the same
// variable are intersected.
func PositiveBounds(fs ...Formula) map[string]Bound {
	out := make(map[string]Bound)
	var walk func(Formula)
	walk = func(f Formula) {
		switch v := f.(type) {
		case And:
			for _, a := range v.Args {
				walk(a)
			}
		case Bound:
			cur, ok := out[v.Var]
			if !ok {
				out[v.Var] = v
				return
			}
			out[v.Var] = narrow(cur, v)
		}
	}
	for _, f := range fs {
		walk(f)
	}
	return out
}

func narrow(a, b Bound) Bound {
	out := a
	if b.Lower > out.Lower {
		out.Lower = b.Lower
	}
	switch {
	case b.Upper < out.Upper:
		out.Upper, out.ClosedUpper = b.Upper, b.ClosedUpper
	case b.Upper == out.Upper:
		out.ClosedUpper = out.ClosedUpper && b.ClosedUpper
	}
	return out
}

// FreeVars returns the sorted names of parameters and state variables
// referenced by the formulas.
func FreeVars(fs ...Formula) []string {
	set := make(map[string]struct{})
	for _, a := range Atoms(fs...) {
		switch v := a.(type) {
		case Bound:
			set[v.Var] = struct{}{}
		case Compare:
			set[v.Var] = struct{}{}
		case Dynamics:
			for _, eq := range v.Equations {
				set[eq.State] = struct{}{}
				for _, n := range TermVars(eq.Rhs) {
					set[n] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
