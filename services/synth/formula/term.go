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
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Term is a real-valued arithmetic expression.
type Term interface {
	fmt.Stringer
	isTerm()
}

// Var references a parameter or state variable by name.
type Var struct{ Name string }

// Const is a numeric literal.
type Const struct{ Value float64 }

// Sum adds its terms. An empty Sum is zero.
type Sum struct{ Terms []Term }

// Product multiplies its terms. An empty Product is one.
type Product struct{ Terms []Term }

// Neg negates its term.
type Neg struct{ Term Term }

// Quotient divides Num by Den.
type Quotient struct{ Num, Den Term }

func (Var) isTerm()      {}
func (Const) isTerm()    {}
func (Sum) isTerm()      {}
func (Product) isTerm()  {}
func (Neg) isTerm()      {}
func (Quotient) isTerm() {}

func (t Var) String() string   { return t.Name }
func (t Const) String() string { return strconv.FormatFloat(t.Value, 'g', -1, 64) }
func (t Sum) String() string   { return joinTerms(" + ", t.Terms, "0") }
func (t Product) String() string {
	return joinTerms(" * ", t.Terms, "1")
}
func (t Neg) String() string      { return "-(" + t.Term.String() + ")" }
func (t Quotient) String() string { return "(" + t.Num.String() + ") / (" + t.Den.String() + ")" }

func joinTerms(sep string, ts []Term, empty string) string {
	if len(ts) == 0 {
		return empty
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// Lookup resolves a variable name to a value.
type Lookup func(name string) (float64, bool)

// EvalTerm evaluates t with variables resolved by lookup.
//
// Outputs:
//
//	float64 - The value. May be infinite or NaN for division by zero.
//	error - ErrUnboundVariable when lookup cannot resolve a Var.
func EvalTerm(t Term, lookup Lookup) (float64, error) {
	switch v := t.(type) {
	case Var:
		x, ok := lookup(v.Name)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnboundVariable, v.Name)
		}
		return x, nil
	case Const:
		return v.Value, nil
	case Sum:
		var s float64
		for _, sub := range v.Terms {
			x, err := EvalTerm(sub, lookup)
			if err != nil {
				return 0, err
			}
			s += x
		}
		return s, nil
	case Product:
		p := 1.0
		for _, sub := range v.Terms {
			x, err := EvalTerm(sub, lookup)
			if err != nil {
				return 0, err
			}
			p *= x
		}
		return p, nil
	case Neg:
		x, err := EvalTerm(v.Term, lookup)
		return -x, err
	case Quotient:
		n, err := EvalTerm(v.Num, lookup)
		if err != nil {
			return 0, err
		}
		d, err := EvalTerm(v.Den, lookup)
		if err != nil {
			return 0, err
		}
		return n / d, nil
	default:
		return 0, fmt.Errorf("%w: term %T", ErrUnsupported, t)
	}
}

// TermVars returns the sorted distinct variable names in t.
func TermVars(t Term) []string {
	set := make(map[string]struct{})
	var walk func(Term)
	walk = func(t Term) {
		switch v := t.(type) {
		case Var:
			set[v.Name] = struct{}{}
		case Sum:
			for _, s := range v.Terms {
				walk(s)
			}
		case Product:
			for _, s := range v.Terms {
				walk(s)
			}
		case Neg:
			walk(v.Term)
		case Quotient:
			walk(v.Num)
			walk(v.Den)
		}
	}
	walk(t)
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
