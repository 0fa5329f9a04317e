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
	"errors"
	"fmt"
	"math"
)

// TimestepVar is the name of the discrete step variable.
const TimestepVar = "timestep"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnboundVariable is returned when evaluation meets a variable the
	// environment cannot resolve.
	ErrUnboundVariable = errors.New("unbound variable")

	// ErrUnsupported is returned for an operator or variant the consumer
	// does not handle.
	ErrUnsupported = errors.New("unsupported formula")

	// ErrNoTrajectory is returned when a state comparison is evaluated in
	// an environment without a trajectory.
	ErrNoTrajectory = errors.New("no trajectory available")
)

// -----------------------------------------------------------------------------
// Environment
// -----------------------------------------------------------------------------

// Trajectory gives the simulated state of a model over discrete steps.
type Trajectory interface {
	// State returns the value of a state variable at step.
	State(name string, step int) (float64, bool)

	// Steps returns the number of steps available, including step zero.
	Steps() int
}

// Env resolves variables during evaluation.
type Env interface {
	// Value returns the value of a parameter or the timestep.
	Value(name string) (float64, bool)

	// Trajectory returns the model trajectory for the current assignment.
	// Implementations typically simulate lazily and cache the result.
	Trajectory() (Trajectory, error)
}

// Evaluate decides f under env.
//
// Description:
//
//	Boolean structure short-circuits. A Bound is decided from the
//	assigned value. A Compare must hold at every step up to the assigned
//	timestep, or up to the last step when no timestep is assigned. A
//	Dynamics atom holds when the trajectory exists and every state is
//	finite up to that step.
//
// Outputs:
//
//	bool - Truth value of f.
//	error - ErrUnboundVariable, ErrNoTrajectory or ErrUnsupported.
func Evaluate(f Formula, env Env) (bool, error) {
	switch v := f.(type) {
	case True:
		return true, nil
	case False:
		return false, nil
	case And:
		for _, a := range v.Args {
			ok, err := Evaluate(a, env)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, a := range v.Args {
			ok, err := Evaluate(a, env)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Evaluate(v.Arg, env)
		return !ok, err
	case Bound:
		x, ok := env.Value(v.Var)
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnboundVariable, v.Var)
		}
		return v.Holds(x), nil
	case Compare:
		return evalCompare(v, env)
	case Dynamics:
		return evalDynamics(v, env)
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupported, f)
	}
}

// Holds reports whether x satisfies the bound.
func (b Bound) Holds(x float64) bool {
	if x < b.Lower {
		return false
	}
	if b.ClosedUpper || b.Lower == b.Upper {
		return x <= b.Upper
	}
	return x < b.Upper
}

func horizon(env Env, traj Trajectory) int {
	last := traj.Steps() - 1
	if t, ok := env.Value(TimestepVar); ok {
		step := int(math.Round(t))
		if step < last {
			return step
		}
	}
	return last
}

func evalCompare(c Compare, env Env) (bool, error) {
	traj, err := env.Trajectory()
	if err != nil {
		return false, err
	}
	if traj == nil {
		return false, ErrNoTrajectory
	}
	for step := 0; step <= horizon(env, traj); step++ {
		x, ok := traj.State(c.Var, step)
		if !ok {
			return false, fmt.Errorf("%w: %s at step %d", ErrUnboundVariable, c.Var, step)
		}
		switch c.Op {
		case OpLE:
			if !(x <= c.Value) {
				return false, nil
			}
		case OpGE:
			if !(x >= c.Value) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: operator %q", ErrUnsupported, c.Op)
		}
	}
	return true, nil
}

func evalDynamics(d Dynamics, env Env) (bool, error) {
	traj, err := env.Trajectory()
	if err != nil {
		return false, err
	}
	if traj == nil {
		return false, ErrNoTrajectory
	}
	for step := 0; step <= horizon(env, traj); step++ {
		for _, eq := range d.Equations {
			x, ok := traj.State(eq.State, step)
			if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
				return false, nil
			}
		}
	}
	return true, nil
}

// MapEnv is an Env over a fixed assignment and an optional trajectory.
type MapEnv struct {
	Values map[string]float64
	Traj   Trajectory
}

// Value implements Env.
func (e MapEnv) Value(name string) (float64, bool) {
	v, ok := e.Values[name]
	return v, ok
}

// Trajectory implements Env.
func (e MapEnv) Trajectory() (Trajectory, error) {
	if e.Traj == nil {
		return nil, ErrNoTrajectory
	}
	return e.Traj, nil
}

// Simulator produces the model trajectory for one parameter assignment.
type Simulator interface {
	Simulate(values map[string]float64) (Trajectory, error)
}
