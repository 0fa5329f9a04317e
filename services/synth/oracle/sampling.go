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
	"log/slog"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// SamplingSolver is the registry name of the sampling backend.
const SamplingSolver = "sampling"

// samplingSession decides the whole assertion stack by candidate
// evaluation.
type samplingSession struct {
	stack
	sampler *sampler
	logger  *slog.Logger
	model   map[string]float64
}

func newSamplingSession(opts Options) (Session, error) {
	s, err := newSampler(opts)
	if err != nil {
		return nil, err
	}
	return &samplingSession{
		stack:   newStack(),
		sampler: s,
		logger:  opts.Logger.With(slog.String("component", "oracle"), slog.String("solver", SamplingSolver)),
	}, nil
}

func (s *samplingSession) Solve(ctx context.Context) (bool, error) {
	s.model = nil
	f := formula.Conj(s.assertions()...)
	values, ok, err := s.sampler.find(ctx, f)
	if err != nil {
		return false, err
	}
	s.logger.Debug("solve", slog.Int("depth", s.depth()), slog.Bool("sat", ok))
	if ok {
		s.model = values
	}
	return ok, nil
}

func (s *samplingSession) Model() (box.Point, error) {
	if s.model == nil {
		return box.Point{}, ErrNoModel
	}
	return point(s.model), nil
}
