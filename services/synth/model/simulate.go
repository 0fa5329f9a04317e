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
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// Schedule is the ordered list of timepoints a model is evaluated at.
//
// Step k of a trajectory corresponds to Timepoints[k].
type Schedule struct {
	Timepoints []float64 `yaml:"timepoints" json:"timepoints" validate:"required,min=1"`
}

// Validate checks the timepoints are strictly increasing.
func (s Schedule) Validate() error {
	if len(s.Timepoints) == 0 {
		return fmt.Errorf("%w: no timepoints", ErrInvalidSchedule)
	}
	for i := 1; i < len(s.Timepoints); i++ {
		if s.Timepoints[i] <= s.Timepoints[i-1] {
			return fmt.Errorf("%w: timepoint %d (%g) does not follow %g",
				ErrInvalidSchedule, i, s.Timepoints[i], s.Timepoints[i-1])
		}
	}
	return nil
}

// Len returns the number of steps.
func (s Schedule) Len() int { return len(s.Timepoints) }

// Trajectory holds one simulated series per state.
type Trajectory struct {
	states map[string][]float64
	steps  int
}

// State implements formula.Trajectory.
func (t *Trajectory) State(name string, step int) (float64, bool) {
	xs, ok := t.states[name]
	if !ok || step < 0 || step >= len(xs) {
		return 0, false
	}
	return xs[step], true
}

// Steps implements formula.Trajectory.
func (t *Trajectory) Steps() int { return t.steps }

// Series returns the values of one state. The slice must not be modified.
func (t *Trajectory) Series(name string) []float64 { return t.states[name] }

// EulerSimulator integrates a Petri net with forward Euler steps between
// the schedule timepoints.
//
// Thread Safety: Safe for concurrent use; Simulate holds no shared state.
type EulerSimulator struct {
	net      PetriNet
	schedule Schedule
	eqs      []formula.Equation
}

// NewEulerSimulator returns a simulator for net over schedule.
func NewEulerSimulator(net PetriNet, schedule Schedule) *EulerSimulator {
	return &EulerSimulator{net: net, schedule: schedule, eqs: net.Equations()}
}

// Simulate implements formula.Simulator.
//
// Description:
//
//	Starts from the initial state quantities and advances one Euler step
//	per schedule interval. values must assign every rate parameter;
//	extra entries such as the timestep are ignored. Non-finite values are
//	kept in the trajectory so callers can reject them.
//
// Outputs:
//
//	formula.Trajectory - A *Trajectory with Schedule.Len() steps.
//	error - ErrMissingParameter when a rate parameter is unassigned.
func (s *EulerSimulator) Simulate(values map[string]float64) (formula.Trajectory, error) {
	for _, p := range s.net.RateParameters() {
		if _, ok := values[p]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, p)
		}
	}

	n := s.schedule.Len()
	traj := &Trajectory{states: make(map[string][]float64, len(s.net.States)), steps: n}
	current := s.net.Initial()
	for name, v := range current {
		traj.states[name] = append(make([]float64, 0, n), v)
	}

	lookup := func(name string) (float64, bool) {
		if v, ok := current[name]; ok {
			return v, true
		}
		v, ok := values[name]
		return v, ok
	}

	next := make(map[string]float64, len(current))
	for k := 0; k+1 < n; k++ {
		dt := s.schedule.Timepoints[k+1] - s.schedule.Timepoints[k]
		for _, eq := range s.eqs {
			d, err := formula.EvalTerm(eq.Rhs, lookup)
			if err != nil {
				if errors.Is(err, formula.ErrUnboundVariable) {
					return nil, fmt.Errorf("%w: %v", ErrMissingParameter, err)
				}
				return nil, err
			}
			next[eq.State] = current[eq.State] + dt*d
		}
		for name, v := range next {
			current[name] = v
			traj.states[name] = append(traj.states[name], v)
		}
	}
	return traj, nil
}
