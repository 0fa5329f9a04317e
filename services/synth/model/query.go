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
	"fmt"

	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// Query is a closed family of trajectory properties.
type Query interface {
	// Formula encodes the query over the trajectory variables.
	Formula() formula.Formula
	isQuery()
}

// QueryTrue holds for every trajectory.
type QueryTrue struct{}

// QueryLE holds when Variable stays at or below UB.
type QueryLE struct {
	Variable string  `yaml:"variable" json:"variable" validate:"required"`
	UB       float64 `yaml:"ub" json:"ub"`
}

// QueryGE holds when Variable stays at or above LB.
type QueryGE struct {
	Variable string  `yaml:"variable" json:"variable" validate:"required"`
	LB       float64 `yaml:"lb" json:"lb"`
}

// QueryAnd holds when every sub-query holds.
type QueryAnd struct {
	Queries []Query
}

func (QueryTrue) isQuery() {}
func (QueryLE) isQuery()   {}
func (QueryGE) isQuery()   {}
func (QueryAnd) isQuery()  {}

func (QueryTrue) Formula() formula.Formula { return formula.True{} }

func (q QueryLE) Formula() formula.Formula {
	return formula.Compare{Var: q.Variable, Op: formula.OpLE, Value: q.UB}
}

func (q QueryGE) Formula() formula.Formula {
	return formula.Compare{Var: q.Variable, Op: formula.OpGE, Value: q.LB}
}

func (q QueryAnd) Formula() formula.Formula {
	fs := make([]formula.Formula, len(q.Queries))
	for i, sub := range q.Queries {
		fs[i] = sub.Formula()
	}
	return formula.Conj(fs...)
}

// QuerySpec is the file form of a query. Exactly one field is set.
type QuerySpec struct {
	LE   *QueryLE    `yaml:"le,omitempty" json:"le,omitempty"`
	GE   *QueryGE    `yaml:"ge,omitempty" json:"ge,omitempty"`
	And  []QuerySpec `yaml:"and,omitempty" json:"and,omitempty"`
	True bool        `yaml:"true,omitempty" json:"true,omitempty"`
}

// Query converts the spec into its variant.
//
// An empty spec is QueryTrue.
func (s QuerySpec) Query() (Query, error) {
	set := 0
	if s.LE != nil {
		set++
	}
	if s.GE != nil {
		set++
	}
	if s.And != nil {
		set++
	}
	if s.True {
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("%w: more than one query kind set", ErrInvalidQuery)
	}
	switch {
	case s.LE != nil:
		if s.LE.Variable == "" {
			return nil, fmt.Errorf("%w: le without variable", ErrInvalidQuery)
		}
		return *s.LE, nil
	case s.GE != nil:
		if s.GE.Variable == "" {
			return nil, fmt.Errorf("%w: ge without variable", ErrInvalidQuery)
		}
		return *s.GE, nil
	case s.And != nil:
		and := QueryAnd{Queries: make([]Query, 0, len(s.And))}
		for i, sub := range s.And {
			q, err := sub.Query()
			if err != nil {
				return nil, fmt.Errorf("and[%d]: %w", i, err)
			}
			and.Queries = append(and.Queries, q)
		}
		return and, nil
	default:
		return QueryTrue{}, nil
	}
}

// QueryVariables returns the state variables a query constrains.
func QueryVariables(q Query) []string {
	switch v := q.(type) {
	case QueryLE:
		return []string{v.Variable}
	case QueryGE:
		return []string{v.Variable}
	case QueryAnd:
		var out []string
		for _, sub := range v.Queries {
			out = append(out, QueryVariables(sub)...)
		}
		return out
	default:
		return nil
	}
}
