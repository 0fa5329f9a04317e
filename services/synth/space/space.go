// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package space holds the result of a synthesis run: collections of
// classified boxes and the witness points found along the way, plus set
// operations for combining spaces computed independently.
package space

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnlabeledBox is returned when adding a box without a terminal label.
	ErrUnlabeledBox = errors.New("box has no terminal label")

	// ErrUnlabeledPoint is returned when adding a point that is neither true nor false.
	ErrUnlabeledPoint = errors.New("point is neither true nor false")
)

// -----------------------------------------------------------------------------
// ParameterSpace
// -----------------------------------------------------------------------------

// ParameterSpace is the characterization of a parameter domain.
//
// Description:
//
//	TrueBoxes and FalseBoxes are the resolved regions. DroppedBoxes are
//	regions left unresolved below tolerance or after an oracle failure,
//	and UnknownBoxes are regions still queued when a run was halted.
//	Within each list no two boxes overlap in interior.
//
// Thread Safety: Not safe for concurrent mutation. The search collector
// owns the space under construction.
type ParameterSpace struct {
	TrueBoxes    []box.Box   `json:"true_boxes" yaml:"true_boxes"`
	FalseBoxes   []box.Box   `json:"false_boxes" yaml:"false_boxes"`
	DroppedBoxes []box.Box   `json:"dropped_boxes,omitempty" yaml:"dropped_boxes,omitempty"`
	UnknownBoxes []box.Box   `json:"unknown_boxes,omitempty" yaml:"unknown_boxes,omitempty"`
	TruePoints   []box.Point `json:"true_points,omitempty" yaml:"true_points,omitempty"`
	FalsePoints  []box.Point `json:"false_points,omitempty" yaml:"false_points,omitempty"`
}

// AddBox files b under its label.
func (s *ParameterSpace) AddBox(b box.Box) error {
	switch b.Label {
	case box.LabelTrue:
		s.TrueBoxes = append(s.TrueBoxes, b)
	case box.LabelFalse:
		s.FalseBoxes = append(s.FalseBoxes, b)
	case box.LabelDropped:
		s.DroppedBoxes = append(s.DroppedBoxes, b)
	case box.LabelUnknown:
		s.UnknownBoxes = append(s.UnknownBoxes, b)
	default:
		return fmt.Errorf("%w: %q", ErrUnlabeledBox, b.Label)
	}
	return nil
}

// AddPoint files p under its label.
func (s *ParameterSpace) AddPoint(p box.Point) error {
	switch p.Label {
	case box.LabelTrue:
		s.TruePoints = append(s.TruePoints, p)
	case box.LabelFalse:
		s.FalsePoints = append(s.FalsePoints, p)
	default:
		return fmt.Errorf("%w: %q", ErrUnlabeledPoint, p.Label)
	}
	return nil
}

// Boxes returns the boxes carrying label l.
func (s ParameterSpace) Boxes(l box.Label) []box.Box {
	switch l {
	case box.LabelTrue:
		return s.TrueBoxes
	case box.LabelFalse:
		return s.FalseBoxes
	case box.LabelDropped:
		return s.DroppedBoxes
	default:
		return s.UnknownBoxes
	}
}

// Len returns the total number of boxes of every label.
func (s ParameterSpace) Len() int {
	return len(s.TrueBoxes) + len(s.FalseBoxes) + len(s.DroppedBoxes) + len(s.UnknownBoxes)
}

// Volume sums the volumes of the boxes carrying label l. Boxes whose
// volume is undefined, such as single points, contribute nothing.
func (s ParameterSpace) Volume(l box.Label, opts box.VolumeOptions) (float64, error) {
	var total float64
	for _, b := range s.Boxes(l) {
		v, err := b.Volume(opts)
		if errors.Is(err, box.ErrUndefinedVolume) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("volume of %s: %w", b.Key(), err)
		}
		total += v
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// Set operations
// -----------------------------------------------------------------------------

// Intersect combines two spaces by pairwise box intersection.
//
// Description:
//
//	Every true box of a is intersected with every true box of b, and
//	likewise for false boxes. Empty results are dropped, as are slivers
//	that collapse a proper dimension to a single value. The result may
//	be non-minimal; see Compact.
func Intersect(a, b ParameterSpace) ParameterSpace {
	return ParameterSpace{
		TrueBoxes:  intersectBoxes(a.TrueBoxes, b.TrueBoxes),
		FalseBoxes: intersectBoxes(a.FalseBoxes, b.FalseBoxes),
	}
}

func intersectBoxes(as, bs []box.Box) []box.Box {
	var out []box.Box
	for _, x := range as {
		for _, y := range bs {
			meet, ok := x.Intersect(y)
			if !ok || sliver(meet, x, y) {
				continue
			}
			out = append(out, meet)
		}
	}
	return out
}

// sliver reports whether meet is a single value in a continuous dimension
// where both inputs had positive width.
func sliver(meet, x, y box.Box) bool {
	for _, name := range meet.Parameters() {
		iv := meet.Bounds[name]
		if !iv.IsPoint() {
			continue
		}
		xi, xok := x.Bounds[name]
		yi, yok := y.Bounds[name]
		if xok && yok && !xi.IsPoint() && !yi.IsPoint() {
			return true
		}
	}
	return false
}

// SymmetricDifference returns, per label, the region covered by exactly
// one of the two spaces.
//
// Description:
//
//	Computed as (A \ B) united with (B \ A), where each box is
//	decomposed recursively against every box of the other collection:
//	a contained box cancels, a disjoint box survives, and an overlapping
//	box is split and its pieces re-tested.
func SymmetricDifference(a, b ParameterSpace) ParameterSpace {
	return ParameterSpace{
		TrueBoxes:  symmetricDifference(a.TrueBoxes, b.TrueBoxes),
		FalseBoxes: symmetricDifference(a.FalseBoxes, b.FalseBoxes),
	}
}

func symmetricDifference(as, bs []box.Box) []box.Box {
	var out []box.Box
	for _, x := range as {
		out = append(out, subtractAll(x, bs)...)
	}
	for _, y := range bs {
		out = append(out, subtractAll(y, as)...)
	}
	return out
}

func subtractAll(b box.Box, others []box.Box) []box.Box {
	pieces := []box.Box{b}
	for _, o := range others {
		var next []box.Box
		for _, p := range pieces {
			next = append(next, p.Subtract(o)...)
		}
		pieces = next
		if len(pieces) == 0 {
			break
		}
	}
	return pieces
}

// Compact merges adjacent boxes of the same label until no merge
// candidates remain. Boxes are visited in box.Less order so the merge
// order is deterministic.
func (s ParameterSpace) Compact() (ParameterSpace, error) {
	out := s
	var err error
	if out.TrueBoxes, err = compact(s.TrueBoxes); err != nil {
		return ParameterSpace{}, fmt.Errorf("compact true boxes: %w", err)
	}
	if out.FalseBoxes, err = compact(s.FalseBoxes); err != nil {
		return ParameterSpace{}, fmt.Errorf("compact false boxes: %w", err)
	}
	if out.DroppedBoxes, err = compact(s.DroppedBoxes); err != nil {
		return ParameterSpace{}, fmt.Errorf("compact dropped boxes: %w", err)
	}
	return out, nil
}

func compact(boxes []box.Box) ([]box.Box, error) {
	work := append([]box.Box(nil), boxes...)
	for {
		sort.SliceStable(work, func(i, j int) bool { return work[i].Less(work[j]) })
		i, j := findMergePair(work)
		if i < 0 {
			return work, nil
		}
		merged, err := work[i].Merge(work[j])
		if err != nil {
			return nil, err
		}
		work[i] = merged
		work = append(work[:j], work[j+1:]...)
	}
}

func findMergePair(boxes []box.Box) (int, int) {
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if _, ok := boxes[i].MeetingDimension(boxes[j]); ok {
				return i, j
			}
		}
	}
	return -1, -1
}

// -----------------------------------------------------------------------------
// Files
// -----------------------------------------------------------------------------

// ReadFile loads a space from a YAML (or JSON) file.
func ReadFile(path string) (ParameterSpace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParameterSpace{}, fmt.Errorf("read space file: %w", err)
	}
	var s ParameterSpace
	if err := yaml.Unmarshal(data, &s); err != nil {
		return ParameterSpace{}, fmt.Errorf("parse space file %s: %w", path, err)
	}
	return s, nil
}

// WriteFile stores the space as YAML.
func WriteFile(path string, s ParameterSpace) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode space: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write space file: %w", err)
	}
	return nil
}
