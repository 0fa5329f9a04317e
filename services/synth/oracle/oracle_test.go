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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// linearSim produces I = 100*x at every step.
type linearSim struct{ steps int }

type constTraj struct {
	v     float64
	steps int
}

func (c constTraj) State(name string, step int) (float64, bool) {
	if name != "I" || step < 0 || step >= c.steps {
		return 0, false
	}
	return c.v, true
}

func (c constTraj) Steps() int { return c.steps }

func (s linearSim) Simulate(values map[string]float64) (formula.Trajectory, error) {
	return constTraj{v: 100 * values["x"], steps: s.steps}, nil
}

func unit(name string) formula.Bound {
	return formula.Bound{Var: name, Lower: 0, Upper: 1}
}

func newSession(t *testing.T, name string) Session {
	t.Helper()
	s, err := New(name, Options{Simulator: linearSim{steps: 3}})
	require.NoError(t, err)
	return s
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, Names(), SamplingSolver)
	assert.Contains(t, Names(), GiniSolver)

	_, err := Lookup("dreal")
	assert.ErrorIs(t, err, ErrUnknownSolver)

	_, err = New("dreal", Options{})
	assert.ErrorIs(t, err, ErrUnknownSolver)
}

func TestSession_Scopes(t *testing.T) {
	for _, name := range []string{SamplingSolver, GiniSolver} {
		t.Run(name, func(t *testing.T) {
			s := newSession(t, name)
			assert.ErrorIs(t, s.Pop(), ErrScopeUnderflow)

			s.AddAssertion(unit("x"))
			s.Push()
			s.AddAssertion(formula.False{})
			sat, err := s.Solve(context.Background())
			require.NoError(t, err)
			assert.False(t, sat)
			_, err = s.Model()
			assert.ErrorIs(t, err, ErrNoModel)

			require.NoError(t, s.Pop())
			sat, err = s.Solve(context.Background())
			require.NoError(t, err)
			assert.True(t, sat)
			p, err := s.Model()
			require.NoError(t, err)
			x, ok := p.Value("x")
			require.True(t, ok)
			assert.GreaterOrEqual(t, x, 0.0)
			assert.Less(t, x, 1.0)
		})
	}
}

func TestSession_QueryWitnesses(t *testing.T) {
	query := formula.Compare{Var: "I", Op: formula.OpLE, Value: 50}

	for _, name := range []string{SamplingSolver, GiniSolver} {
		t.Run(name, func(t *testing.T) {
			s := newSession(t, name)

			s.Push()
			s.AddAssertion(unit("x"))
			s.AddAssertion(query)
			sat, err := s.Solve(context.Background())
			require.NoError(t, err)
			require.True(t, sat)
			p, err := s.Model()
			require.NoError(t, err)
			x, _ := p.Value("x")
			assert.LessOrEqual(t, x, 0.5)
			require.NoError(t, s.Pop())

			// No point of [0, 0.4) violates the query.
			s.Push()
			s.AddAssertion(formula.Bound{Var: "x", Lower: 0, Upper: 0.4})
			s.AddAssertion(formula.Negate(query))
			sat, err = s.Solve(context.Background())
			require.NoError(t, err)
			assert.False(t, sat)
			require.NoError(t, s.Pop())
		})
	}
}

func TestSession_DiscreteTimestep(t *testing.T) {
	s := newSession(t, SamplingSolver)
	s.AddAssertion(formula.Conj(unit("x"), formula.Bound{Var: formula.TimestepVar, Lower: 1, Upper: 3}))

	sat, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, sat)
	p, err := s.Model()
	require.NoError(t, err)
	step, ok := p.Timestep()
	require.True(t, ok)
	assert.Contains(t, []int{1, 2}, step)
}

func TestGini_Disjunction(t *testing.T) {
	s := newSession(t, GiniSolver)
	s.AddAssertion(formula.Disj(
		formula.Bound{Var: "x", Lower: 0, Upper: 0.1},
		formula.Bound{Var: "x", Lower: 0.9, Upper: 1},
	))
	s.AddAssertion(formula.Compare{Var: "I", Op: formula.OpGE, Value: 95})

	sat, err := s.Solve(context.Background())
	require.NoError(t, err)
	require.True(t, sat)
	p, err := s.Model()
	require.NoError(t, err)
	x, _ := p.Value("x")
	assert.GreaterOrEqual(t, x, 0.9)
}

func TestSession_NoSimulator(t *testing.T) {
	s, err := New(SamplingSolver, Options{})
	require.NoError(t, err)
	s.AddAssertion(unit("x"))
	s.AddAssertion(formula.Compare{Var: "I", Op: formula.OpLE, Value: 1})
	_, err = s.Solve(context.Background())
	assert.ErrorIs(t, err, ErrNoSimulator)
}

func TestSession_CanceledContext(t *testing.T) {
	s := newSession(t, SamplingSolver)
	s.AddAssertion(unit("x"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Solve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntOption(t *testing.T) {
	tests := []struct {
		name    string
		opts    map[string]any
		want    int
		wantErr bool
	}{
		{"default", nil, 7, false},
		{"int", map[string]any{"k": 3}, 3, false},
		{"json number", map[string]any{"k": 4.0}, 4, false},
		{"fraction", map[string]any{"k": 4.5}, 0, true},
		{"string", map[string]any{"k": "4"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intOption(tt.opts, "k", 7)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := New(GiniSolver, Options{Tuning: map[string]any{"max_refinements": 0}})
	assert.Error(t, err)
	_, err = New(SamplingSolver, Options{Tuning: map[string]any{"samples": -1}})
	assert.Error(t, err)
}

func TestDumpSMTLIB(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "smt")
	stack := []formula.Formula{unit("x"), formula.Negate(formula.Compare{Var: "I", Op: formula.OpLE, Value: 5})}

	require.NoError(t, DumpSMTLIB(dir, QueryFalsePoint, 3, stack))

	data, err := os.ReadFile(filepath.Join(dir, "fp_3.smt2"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "(set-logic QF_NIRA)"))
	assert.Contains(t, string(data), "(not ")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
