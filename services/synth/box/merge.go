// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package box

import (
	"fmt"

	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
)

// MeetingDimension returns the single dimension in which b and o meet when
// every other dimension is equal.
//
// Description:
//
//	Boxes are merge candidates when their intervals are equal in all but
//	exactly one dimension and meet (share a boundary) in that one. Boxes
//	with different dimension sets or schedules never qualify.
//
// Outputs:
//
//	string - The meeting dimension.
//	bool - True when b and o are merge candidates.
func (b Box) MeetingDimension(o Box) (string, bool) {
	if len(b.Bounds) != len(o.Bounds) || b.Schedule != o.Schedule {
		return "", false
	}
	meeting := ""
	for _, name := range b.Dimensions() {
		iv := b.Bounds[name]
		oiv, ok := o.Bounds[name]
		if !ok {
			return "", false
		}
		switch {
		case iv.Equal(oiv):
		case b.meetsIn(name, oiv):
			if meeting != "" {
				return "", false
			}
			meeting = name
		default:
			return "", false
		}
	}
	return meeting, meeting != ""
}

// meetsIn handles the discrete timestep, where [0,4] meets [5,9].
func (b Box) meetsIn(name string, o interval.Interval) bool {
	iv := b.Bounds[name]
	if iv.Meets(o) {
		return true
	}
	if name == TimestepName && iv.ClosedUpper && o.ClosedUpper {
		return iv.Upper+1 == o.Lower || o.Upper+1 == iv.Lower
	}
	return false
}

// Merge joins two merge candidates into one box spanning both.
func (b Box) Merge(o Box) (Box, error) {
	dim, ok := b.MeetingDimension(o)
	if !ok {
		return Box{}, fmt.Errorf("%w: %s and %s are not merge candidates", ErrDimensionMismatch, b.Key(), o.Key())
	}
	iv, oiv := b.Bounds[dim], o.Bounds[dim]
	var joined interval.Interval
	if iv.Meets(oiv) {
		var err error
		if joined, err = iv.Union(oiv); err != nil {
			return Box{}, err
		}
	} else {
		lo, hi := iv, oiv
		if oiv.Lower < iv.Lower {
			lo, hi = oiv, iv
		}
		joined = interval.Interval{Lower: lo.Lower, Upper: hi.Upper, ClosedUpper: true, OriginalWidth: iv.OriginalWidth}
	}

	bounds := b.cloneBounds()
	bounds[dim] = joined
	out := Box{Bounds: bounds, Label: b.Label, Schedule: b.Schedule}
	pts := append(append([]Point(nil), b.Points...), o.Points...)
	return out.withPoints(dedupe(pts)), nil
}

// MergeCandidates returns the boxes from others that b can merge with,
// in the order given. b itself is skipped.
func (b Box) MergeCandidates(others []Box) []Box {
	var out []Box
	for _, o := range others {
		if o.Equal(b) {
			continue
		}
		if _, ok := b.MeetingDimension(o); ok {
			out = append(out, o)
		}
	}
	return out
}
