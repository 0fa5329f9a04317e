// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package formula

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// WriteSMTLIB renders an assertion stack as an SMT-LIB v2 script.
//
// Description:
//
//	Parameters are declared Real and the timestep Int. State variables
//	are unrolled into one Real symbol per step (S_0, S_1, ...), using the
//	step count of the first Dynamics atom found. Each formula becomes one
//	assert command, followed by check-sat.
//
// Inputs:
//
//	w - Destination writer.
//	assertions - Formulas in stack order.
//
// Outputs:
//
//	error - Non-nil on write failure or an unrenderable term.
func WriteSMTLIB(w io.Writer, assertions []Formula) error {
	r := newRenderer(assertions)
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "(set-logic QF_NIRA)")
	for _, p := range r.params {
		kind := "Real"
		if p == TimestepVar {
			kind = "Int"
		}
		fmt.Fprintf(bw, "(declare-fun %s () %s)\n", symbol(p), kind)
	}
	for _, s := range r.states {
		for k := 0; k < r.steps; k++ {
			fmt.Fprintf(bw, "(declare-fun %s () Real)\n", symbol(timed(s, k)))
		}
	}
	for _, f := range assertions {
		var sb strings.Builder
		if err := r.formula(&sb, f); err != nil {
			return err
		}
		fmt.Fprintf(bw, "(assert %s)\n", sb.String())
	}
	fmt.Fprintln(bw, "(check-sat)")
	return bw.Flush()
}

type renderer struct {
	params  []string
	states  []string
	isState map[string]bool
	steps   int
}

func newRenderer(fs []Formula) *renderer {
	r := &renderer{isState: make(map[string]bool), steps: 1}
	foundDynamics := false
	for _, a := range Atoms(fs...) {
		switch v := a.(type) {
		case Dynamics:
			if !foundDynamics && len(v.Timepoints) > 0 {
				r.steps = len(v.Timepoints)
				foundDynamics = true
			}
			for _, eq := range v.Equations {
				r.isState[eq.State] = true
			}
		case Compare:
			r.isState[v.Var] = true
		}
	}
	for _, n := range FreeVars(fs...) {
		if r.isState[n] {
			r.states = append(r.states, n)
		} else {
			r.params = append(r.params, n)
		}
	}
	needsTimestep := false
	for _, a := range Atoms(fs...) {
		if _, ok := a.(Compare); ok {
			needsTimestep = true
		}
	}
	if needsTimestep && !contains(r.params, TimestepVar) {
		r.params = append(r.params, TimestepVar)
		sort.Strings(r.params)
	}
	return r
}

func (r *renderer) formula(sb *strings.Builder, f Formula) error {
	switch v := f.(type) {
	case True:
		sb.WriteString("true")
	case False:
		sb.WriteString("false")
	case And:
		return r.nary(sb, "and", "true", v.Args)
	case Or:
		return r.nary(sb, "or", "false", v.Args)
	case Not:
		sb.WriteString("(not ")
		if err := r.formula(sb, v.Arg); err != nil {
			return err
		}
		sb.WriteByte(')')
	case Bound:
		op := "<"
		if v.ClosedUpper || v.Lower == v.Upper {
			op = "<="
		}
		s := symbol(v.Var)
		fmt.Fprintf(sb, "(and (<= %s %s) (%s %s %s))", r.number(v.Var, v.Lower), s, op, s, r.number(v.Var, v.Upper))
	case Compare:
		sb.WriteString("(and")
		for k := 0; k < r.steps; k++ {
			fmt.Fprintf(sb, " (=> (>= %s %d) (%s %s %s))", TimestepVar, k, v.Op, symbol(timed(v.Var, k)), realLit(v.Value))
		}
		sb.WriteByte(')')
	case Dynamics:
		return r.dynamics(sb, v)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, f)
	}
	return nil
}

func (r *renderer) nary(sb *strings.Builder, op, empty string, args []Formula) error {
	if len(args) == 0 {
		sb.WriteString(empty)
		return nil
	}
	sb.WriteString("(" + op)
	for _, a := range args {
		sb.WriteByte(' ')
		if err := r.formula(sb, a); err != nil {
			return err
		}
	}
	sb.WriteByte(')')
	return nil
}

func (r *renderer) dynamics(sb *strings.Builder, d Dynamics) error {
	sb.WriteString("(and")
	states := make([]string, 0, len(d.Initial))
	for s := range d.Initial {
		states = append(states, s)
	}
	sort.Strings(states)
	for _, s := range states {
		fmt.Fprintf(sb, " (= %s %s)", symbol(timed(s, 0)), realLit(d.Initial[s]))
	}
	for k := 0; k+1 < len(d.Timepoints) && k+1 < r.steps; k++ {
		dt := d.Timepoints[k+1] - d.Timepoints[k]
		for _, eq := range d.Equations {
			var rhs strings.Builder
			if err := r.term(&rhs, eq.Rhs, k); err != nil {
				return err
			}
			fmt.Fprintf(sb, " (= %s (+ %s (* %s %s)))",
				symbol(timed(eq.State, k+1)), symbol(timed(eq.State, k)), realLit(dt), rhs.String())
		}
	}
	sb.WriteByte(')')
	return nil
}

func (r *renderer) term(sb *strings.Builder, t Term, step int) error {
	switch v := t.(type) {
	case Var:
		if r.isState[v.Name] {
			sb.WriteString(symbol(timed(v.Name, step)))
		} else {
			sb.WriteString(symbol(v.Name))
		}
	case Const:
		sb.WriteString(realLit(v.Value))
	case Sum:
		return r.nterm(sb, "+", "0.0", v.Terms, step)
	case Product:
		return r.nterm(sb, "*", "1.0", v.Terms, step)
	case Neg:
		sb.WriteString("(- ")
		if err := r.term(sb, v.Term, step); err != nil {
			return err
		}
		sb.WriteByte(')')
	case Quotient:
		sb.WriteString("(/ ")
		if err := r.term(sb, v.Num, step); err != nil {
			return err
		}
		sb.WriteByte(' ')
		if err := r.term(sb, v.Den, step); err != nil {
			return err
		}
		sb.WriteByte(')')
	default:
		return fmt.Errorf("%w: term %T", ErrUnsupported, t)
	}
	return nil
}

func (r *renderer) nterm(sb *strings.Builder, op, empty string, ts []Term, step int) error {
	switch len(ts) {
	case 0:
		sb.WriteString(empty)
		return nil
	case 1:
		return r.term(sb, ts[0], step)
	}
	sb.WriteString("(" + op)
	for _, t := range ts {
		sb.WriteByte(' ')
		if err := r.term(sb, t, step); err != nil {
			return err
		}
	}
	sb.WriteByte(')')
	return nil
}

// number renders v as an Int literal for the timestep and Real otherwise.
func (r *renderer) number(name string, v float64) string {
	if name == TimestepVar {
		return strconv.Itoa(int(math.Round(v)))
	}
	return realLit(v)
}

func realLit(v float64) string {
	neg := v < 0
	s := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	if neg {
		return "(- " + s + ")"
	}
	return s
}

func timed(name string, step int) string {
	return name + "_" + strconv.Itoa(step)
}

func symbol(name string) string {
	for _, c := range name {
		if !(c == '_' || c == '.' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "|" + strings.ReplaceAll(name, "|", "") + "|"
		}
	}
	return name
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
