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
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
)

// problemValidate checks problem files.
var problemValidate *validator.Validate

func init() {
	problemValidate = validator.New()

	// Names used as formula variables must not collide with the step variable.
	_ = problemValidate.RegisterValidation("notreserved", func(fl validator.FieldLevel) bool {
		return fl.Field().String() != box.TimestepName
	})
}

// Parameter is a model parameter with its search range [Lower, Upper].
type Parameter struct {
	Name  string  `yaml:"name" json:"name" validate:"required,notreserved"`
	Lower float64 `yaml:"lb" json:"lb"`
	Upper float64 `yaml:"ub" json:"ub" validate:"gtefield=Lower"`
}

// StepRange bounds the timestep dimension by schedule index.
type StepRange struct {
	Lower int `yaml:"lb" json:"lb" validate:"gte=0"`
	Upper int `yaml:"ub" json:"ub" validate:"gtefield=Lower"`
}

// ProblemFile is the on-disk form of a Petri net problem.
type ProblemFile struct {
	Name        string      `yaml:"name" json:"name" validate:"required"`
	Model       PetriNet    `yaml:"model" json:"model"`
	Parameters  []Parameter `yaml:"parameters" json:"parameters" validate:"required,min=1,dive"`
	Schedule    Schedule    `yaml:"schedule" json:"schedule"`
	Query       QuerySpec   `yaml:"query" json:"query"`
	Assumptions []QuerySpec `yaml:"assumptions,omitempty" json:"assumptions,omitempty"`
	Timestep    *StepRange  `yaml:"timestep,omitempty" json:"timestep,omitempty"`
}

// PetriNetProblem implements Problem for a Petri net.
type PetriNetProblem struct {
	name        string
	net         PetriNet
	params      []Parameter
	schedule    Schedule
	query       Query
	assumptions []Query
	steps       StepRange
}

// NewPetriNetProblem validates and assembles a problem.
//
// Description:
//
//	Every rate parameter of net must be declared in params, and every
//	query variable must be a state. When steps is nil the timestep
//	dimension is the single final step of the schedule.
//
// Outputs:
//
//	*PetriNetProblem - The problem.
//	error - ErrInvalidProblem, ErrInvalidModel or ErrInvalidSchedule.
func NewPetriNetProblem(name string, net PetriNet, params []Parameter, schedule Schedule,
	query Query, assumptions []Query, steps *StepRange) (*PetriNetProblem, error) {

	if err := net.Validate(); err != nil {
		return nil, err
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if query == nil {
		query = QueryTrue{}
	}

	declared := make(map[string]bool, len(params))
	for _, p := range params {
		if declared[p.Name] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalidProblem, p.Name)
		}
		if p.Upper < p.Lower {
			return nil, fmt.Errorf("%w: parameter %q has ub < lb", ErrInvalidProblem, p.Name)
		}
		declared[p.Name] = true
	}
	for _, p := range net.RateParameters() {
		if !declared[p] {
			return nil, fmt.Errorf("%w: rate parameter %q is not declared", ErrInvalidProblem, p)
		}
	}

	states := make(map[string]bool)
	for _, s := range net.StateNames() {
		states[s] = true
	}
	for _, q := range append([]Query{query}, assumptions...) {
		for _, v := range QueryVariables(q) {
			if !states[v] {
				return nil, fmt.Errorf("%w: query variable %q is not a state", ErrInvalidProblem, v)
			}
		}
	}

	last := schedule.Len() - 1
	r := StepRange{Lower: last, Upper: last}
	if steps != nil {
		r = *steps
	}
	if r.Lower < 0 || r.Upper < r.Lower || r.Upper > last {
		return nil, fmt.Errorf("%w: timestep range [%d, %d] outside schedule of %d steps",
			ErrInvalidProblem, r.Lower, r.Upper, schedule.Len())
	}

	return &PetriNetProblem{
		name:        name,
		net:         net,
		params:      append([]Parameter(nil), params...),
		schedule:    schedule,
		query:       query,
		assumptions: assumptions,
		steps:       r,
	}, nil
}

// Name implements Problem.
func (p *PetriNetProblem) Name() string { return p.name }

// Parameters implements Problem.
func (p *PetriNetProblem) Parameters() []Parameter { return append([]Parameter(nil), p.params...) }

// Schedule implements Problem.
func (p *PetriNetProblem) Schedule() Schedule { return p.schedule }

// Model returns the underlying net.
func (p *PetriNetProblem) Model() PetriNet { return p.net }

// Domain implements Problem.
//
// Parameters get closed intervals over their declared range. The
// timestep dimension is the closed index range of the problem.
func (p *PetriNetProblem) Domain() (box.Box, error) {
	bounds := make(map[string]interval.Interval, len(p.params)+1)
	for _, prm := range p.params {
		iv, err := interval.NewClosed(prm.Lower, prm.Upper)
		if err != nil {
			return box.Box{}, fmt.Errorf("parameter %s: %w", prm.Name, err)
		}
		bounds[prm.Name] = iv
	}
	iv, err := interval.NewClosed(float64(p.steps.Lower), float64(p.steps.Upper))
	if err != nil {
		return box.Box{}, err
	}
	bounds[box.TimestepName] = iv

	b, err := box.New(bounds)
	if err != nil {
		return box.Box{}, err
	}
	b.Schedule = scheduleKey(p.schedule)
	return b, nil
}

// NewEncoder implements Problem.
func (p *PetriNetProblem) NewEncoder() (Encoder, error) {
	as := make([]formula.Formula, len(p.assumptions))
	for i, q := range p.assumptions {
		as[i] = q.Formula()
	}
	return newPetriEncoder(p.net, p.schedule, p.query, as), nil
}

func scheduleKey(s Schedule) string {
	parts := make([]string, len(s.Timepoints))
	for i, t := range s.Timepoints {
		parts[i] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// LoadProblem reads and validates a YAML problem file.
func LoadProblem(path string) (*PetriNetProblem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading problem file: %w", err)
	}
	return ParseProblem(data)
}

// ParseProblem decodes a YAML problem document.
func ParseProblem(data []byte) (*PetriNetProblem, error) {
	var pf ProblemFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing problem: %w", err)
	}
	if err := problemValidate.Struct(pf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProblem, err)
	}
	if pf.Model.Name == "" {
		pf.Model.Name = pf.Name
	}

	q, err := pf.Query.Query()
	if err != nil {
		return nil, err
	}
	assumptions := make([]Query, 0, len(pf.Assumptions))
	for i, spec := range pf.Assumptions {
		a, err := spec.Query()
		if err != nil {
			return nil, fmt.Errorf("assumption %d: %w", i, err)
		}
		assumptions = append(assumptions, a)
	}
	return NewPetriNetProblem(pf.Name, pf.Model, pf.Parameters, pf.Schedule, q, assumptions, pf.Timestep)
}
