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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
)

func sirNet() PetriNet {
	return PetriNet{
		Name: "sir",
		States: []State{
			{Name: "S", Initial: 990},
			{Name: "I", Initial: 10},
			{Name: "R", Initial: 0},
		},
		Transitions: []Transition{
			{Name: "infection", Inputs: []string{"S", "I"}, Outputs: []string{"I", "I"}, Rate: Rate{Parameter: "beta", Normalize: true}},
			{Name: "recovery", Inputs: []string{"I"}, Outputs: []string{"R"}, Rate: Rate{Parameter: "gamma"}},
		},
	}
}

func linearSchedule(n int) Schedule {
	tp := make([]float64, n)
	for i := range tp {
		tp[i] = float64(i)
	}
	return Schedule{Timepoints: tp}
}

func TestPetriNet_Validate(t *testing.T) {
	require.NoError(t, sirNet().Validate())

	bad := sirNet()
	bad.Transitions[0].Inputs = []string{"X"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidModel)

	dup := sirNet()
	dup.States = append(dup.States, State{Name: "S"})
	assert.ErrorIs(t, dup.Validate(), ErrInvalidModel)

	shadow := sirNet()
	shadow.Transitions[1].Rate.Parameter = "R"
	assert.ErrorIs(t, shadow.Validate(), ErrInvalidModel)
}

func TestPetriNet_Equations(t *testing.T) {
	net := sirNet()
	eqs := net.Equations()
	require.Len(t, eqs, 3)

	vals := map[string]float64{"S": 900, "I": 100, "R": 0, "beta": 0.5, "gamma": 0.1}
	lookup := func(n string) (float64, bool) { v, ok := vals[n]; return v, ok }

	want := map[string]float64{
		"S": -0.5 * 900 * 100 / 1000,
		"I": 0.5*900*100/1000 - 0.1*100,
		"R": 0.1 * 100,
	}
	for _, eq := range eqs {
		got, err := formula.EvalTerm(eq.Rhs, lookup)
		require.NoError(t, err)
		assert.InDelta(t, want[eq.State], got, 1e-9, eq.State)
	}
	assert.Equal(t, []string{"beta", "gamma"}, net.RateParameters())
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, linearSchedule(3).Validate())
	assert.ErrorIs(t, Schedule{}.Validate(), ErrInvalidSchedule)
	assert.ErrorIs(t, Schedule{Timepoints: []float64{0, 2, 2}}.Validate(), ErrInvalidSchedule)
}

func TestEulerSimulator_Simulate(t *testing.T) {
	sim := NewEulerSimulator(sirNet(), Schedule{Timepoints: []float64{0, 1, 3, 6}})

	tr, err := sim.Simulate(map[string]float64{"beta": 0.3, "gamma": 0.1})
	require.NoError(t, err)
	require.Equal(t, 4, tr.Steps())

	traj := tr.(*Trajectory)
	for k := 0; k < tr.Steps(); k++ {
		total := traj.Series("S")[k] + traj.Series("I")[k] + traj.Series("R")[k]
		assert.InDelta(t, 1000, total, 1e-9, "population conserved at step %d", k)
	}

	// One Euler step from the initial state with dt = 1.
	i1, ok := tr.State("I", 1)
	require.True(t, ok)
	assert.InDelta(t, 10+0.3*990*10/1000-0.1*10, i1, 1e-9)

	_, ok = tr.State("I", 4)
	assert.False(t, ok)

	_, err = sim.Simulate(map[string]float64{"beta": 0.3})
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestQuerySpec_Query(t *testing.T) {
	q, err := QuerySpec{}.Query()
	require.NoError(t, err)
	assert.Equal(t, QueryTrue{}, q)

	q, err = QuerySpec{And: []QuerySpec{
		{LE: &QueryLE{Variable: "I", UB: 300}},
		{GE: &QueryGE{Variable: "S", LB: 1}},
	}}.Query()
	require.NoError(t, err)
	assert.Equal(t, []string{"I", "S"}, QueryVariables(q))
	assert.Equal(t, formula.Conj(
		formula.Compare{Var: "I", Op: formula.OpLE, Value: 300},
		formula.Compare{Var: "S", Op: formula.OpGE, Value: 1},
	), q.Formula())

	_, err = QuerySpec{LE: &QueryLE{Variable: "I"}, True: true}.Query()
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = QuerySpec{GE: &QueryGE{}}.Query()
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNewPetriNetProblem(t *testing.T) {
	params := []Parameter{{Name: "beta", Lower: 0.1, Upper: 0.5}, {Name: "gamma", Lower: 0.05, Upper: 0.2}}

	t.Run("defaults to the final step", func(t *testing.T) {
		p, err := NewPetriNetProblem("sir", sirNet(), params, linearSchedule(5), QueryLE{Variable: "I", UB: 300}, nil, nil)
		require.NoError(t, err)

		dom, err := p.Domain()
		require.NoError(t, err)
		ts, ok := dom.Timestep()
		require.True(t, ok)
		assert.Equal(t, 4.0, ts.Lower)
		assert.Equal(t, 4.0, ts.Upper)
		assert.Equal(t, []string{"beta", "gamma"}, dom.Parameters())
		assert.True(t, dom.Bounds["beta"].ClosedUpper)
		assert.Equal(t, box.LabelUnknown, dom.Label)
		assert.Equal(t, "0,1,2,3,4", dom.Schedule)
	})

	tests := []struct {
		name   string
		params []Parameter
		query  Query
		steps  *StepRange
	}{
		{"undeclared rate parameter", params[:1], QueryTrue{}, nil},
		{"duplicate parameter", append(params, params[0]), QueryTrue{}, nil},
		{"query on unknown state", params, QueryLE{Variable: "Q"}, nil},
		{"step range past schedule", params, QueryTrue{}, &StepRange{Lower: 0, Upper: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPetriNetProblem("sir", sirNet(), tt.params, linearSchedule(5), tt.query, nil, tt.steps)
			assert.ErrorIs(t, err, ErrInvalidProblem)
		})
	}
}

func TestPetriNetProblem_NewEncoder(t *testing.T) {
	params := []Parameter{{Name: "beta", Lower: 0.1, Upper: 0.5}, {Name: "gamma", Lower: 0.05, Upper: 0.2}}
	p, err := NewPetriNetProblem("sir", sirNet(), params, linearSchedule(3),
		QueryLE{Variable: "I", UB: 300}, []Query{QueryGE{Variable: "S", LB: 0}}, nil)
	require.NoError(t, err)

	enc, err := p.NewEncoder()
	require.NoError(t, err)

	and, ok := enc.Model().(formula.And)
	require.True(t, ok)
	require.Len(t, and.Args, 2)
	dyn, ok := and.Args[0].(formula.Dynamics)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1, 2}, dyn.Timepoints)
	assert.Equal(t, 990.0, dyn.Initial["S"])

	assert.Equal(t, formula.Compare{Var: "I", Op: formula.OpLE, Value: 300}, enc.Query())

	b := box.MustNew(map[string]interval.Interval{
		"beta":           interval.Must(interval.New(0.1, 0.3)),
		box.TimestepName: interval.Must(interval.NewClosed(2, 2)),
	})
	assert.Equal(t, formula.Conj(
		formula.Bound{Var: "beta", Lower: 0.1, Upper: 0.3},
		formula.Bound{Var: box.TimestepName, Lower: 2, Upper: 2, ClosedUpper: true},
	), enc.Box(b))

	// The model formula holds along the simulated trajectory.
	vals := map[string]float64{"beta": 0.2, "gamma": 0.1, box.TimestepName: 2}
	tr, err := enc.Simulator().Simulate(vals)
	require.NoError(t, err)
	ok, err = formula.Evaluate(enc.Model(), formula.MapEnv{Values: vals, Traj: tr})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadProblem(t *testing.T) {
	p, err := LoadProblem(filepath.Join("..", "..", "..", "testdata", "sir.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sir", p.Name())
	assert.Equal(t, "sir", p.Model().Name)
	assert.Equal(t, 11, p.Schedule().Len())
	require.Len(t, p.Parameters(), 2)

	dom, err := p.Domain()
	require.NoError(t, err)
	ts, _ := dom.Timestep()
	assert.Equal(t, 10.0, ts.Lower)
}

func TestParseProblem_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no parameters", "name: x\nmodel: {states: [{name: S, initial: 1}]}\nschedule: {timepoints: [0, 1]}\n"},
		{"inverted parameter", "name: x\nmodel: {states: [{name: S, initial: 1}]}\nparameters: [{name: a, lb: 2, ub: 1}]\nschedule: {timepoints: [0, 1]}\n"},
		{"reserved name", "name: x\nmodel: {states: [{name: S, initial: 1}]}\nparameters: [{name: timestep, lb: 0, ub: 1}]\nschedule: {timepoints: [0, 1]}\n"},
		{"no schedule", "name: x\nmodel: {states: [{name: S, initial: 1}]}\nparameters: [{name: a, lb: 0, ub: 1}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProblem([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidProblem)
		})
	}
}
