// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle provides satisfiability sessions over parameter formulas.
//
// A Session holds a scoped assertion stack. The search pushes a scope per
// box, asserts the box bounds with the query or its negation, solves, and
// reads a witness point from the model. Backends are registered by name
// and chosen through configuration:
//
//	sampling  decides a conjunction by evaluating candidate points
//	gini      enumerates propositional skeletons with a SAT solver and
//	          checks each one by sampling
//
// Both backends are incomplete: an unsatisfiable answer means no witness
// was found within the configured budget.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnknownSolver is returned when no backend is registered under a name.
	ErrUnknownSolver = errors.New("unknown solver")

	// ErrScopeUnderflow is returned by Pop without a matching Push.
	ErrScopeUnderflow = errors.New("pop without matching push")

	// ErrNoModel is returned by Model when the last Solve was not satisfiable.
	ErrNoModel = errors.New("no model available")

	// ErrNoSimulator is returned when dynamics must be decided without a simulator.
	ErrNoSimulator = errors.New("no simulator configured")
)

// -----------------------------------------------------------------------------
// Session contract
// -----------------------------------------------------------------------------

// Session is an incremental satisfiability context.
//
// Thread Safety: Not safe for concurrent use. Each worker owns one session.
type Session interface {
	// Push opens a new assertion scope.
	Push()

	// Pop discards every assertion made since the matching Push.
	Pop() error

	// AddAssertion adds f to the current scope.
	AddAssertion(f formula.Formula)

	// Solve decides the conjunction of all assertions in scope.
	Solve(ctx context.Context) (bool, error)

	// Model returns the witness of the last satisfiable Solve.
	Model() (box.Point, error)
}

// Options configure a backend instance.
type Options struct {
	// Simulator decides Dynamics and state comparisons. Required whenever
	// assertions mention trajectories.
	Simulator formula.Simulator

	// Tuning holds backend-specific settings passed through from
	// configuration, such as "samples", "seed" or "max_refinements".
	Tuning map[string]any

	// Logger for backend diagnostics. If nil, uses slog.Default().
	Logger *slog.Logger
}

// Factory builds a new session.
type Factory func(opts Options) (Session, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a backend under name, replacing any existing one.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Lookup returns the backend registered under name.
func Lookup(name string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSolver, name)
	}
	return f, nil
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New builds a session from the named backend.
func New(name string, opts Options) (Session, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return f(opts)
}

func init() {
	Register(SamplingSolver, newSamplingSession)
	Register(GiniSolver, newGiniSession)
}

// -----------------------------------------------------------------------------
// Assertion stack
// -----------------------------------------------------------------------------

// stack is the scoped assertion store shared by the backends.
type stack struct {
	frames [][]formula.Formula
}

func newStack() stack {
	return stack{frames: [][]formula.Formula{nil}}
}

func (s *stack) Push() {
	s.frames = append(s.frames, nil)
}

func (s *stack) Pop() error {
	if len(s.frames) <= 1 {
		return ErrScopeUnderflow
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *stack) AddAssertion(f formula.Formula) {
	top := len(s.frames) - 1
	s.frames[top] = append(s.frames[top], f)
}

// assertions returns every formula in scope, outermost first.
func (s *stack) assertions() []formula.Formula {
	var out []formula.Formula
	for _, fr := range s.frames {
		out = append(out, fr...)
	}
	return out
}

// depth returns the number of open scopes above the base.
func (s *stack) depth() int { return len(s.frames) - 1 }
