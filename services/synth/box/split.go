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
	"math"
)

// witnessWidthFloor is the fraction of the box's normalized width below
// which a witness-selected dimension is considered degenerate.
const witnessWidthFloor = 0.5

// SplitResult holds the two children of a split.
type SplitResult struct {
	// Lower covers [lb, mid) of the split dimension.
	Lower Box

	// Upper covers [mid, ub) of the split dimension.
	Upper Box

	// Dimension is the name of the split dimension.
	Dimension string

	// Midpoint is the cut value.
	Midpoint float64

	// WitnessGuided is true when the cut was chosen from witness points.
	WitnessGuided bool
}

// Children returns the lower and upper child, in that order.
func (r SplitResult) Children() []Box {
	return []Box{r.Lower, r.Upper}
}

// Split partitions the box into two children along one dimension.
//
// Description:
//
//	When witness groups are supplied (typically true points and false
//	points), the split dimension is the parameter where the witnesses
//	deviate most from the centre of their group centroids, normalized by
//	the dimension's original width. That choice is discarded when the
//	dimension is narrower than half of the box's normalized width, and
//	the cut falls back to the geometric midpoint when the witness-based
//	midpoint lands on a bound. Otherwise the widest dimension is cut at
//	its geometric midpoint. The timestep dimension is never split.
//
//	Both children keep identical bounds outside the split dimension,
//	inherit only the cached points they contain, and preserve the split
//	dimension's OriginalWidth.
//
// Inputs:
//
//	groups - Witness point groups. May be nil.
//	names - Dimensions eligible for splitting. Empty means every parameter.
//	normalize - Compare normalized widths for the geometric fallback.
//
// Outputs:
//
//	SplitResult - The two children and the chosen cut.
//	error - ErrNoSplitDimension when no dimension has positive width.
func (b Box) Split(groups [][]Point, names []string, normalize bool) (SplitResult, error) {
	if len(names) == 0 {
		names = b.Parameters()
	}

	dim, mid, guided := "", 0.0, false
	if hasPoints(groups) {
		if p, ok := b.witnessDimension(groups, names); ok {
			iv := b.Bounds[p]
			if iv.Width(true) >= witnessWidthFloor*b.widthOver(names, true) {
				m := iv.MidpointOf(groupValues(groups, p))
				if m > iv.Lower && m < iv.Upper {
					dim, mid, guided = p, m, true
				}
			}
		}
	}

	if !guided {
		p, ok := b.MaxWidthParameter(normalize, names)
		if !ok {
			return SplitResult{}, ErrNoSplitDimension
		}
		iv := b.Bounds[p]
		m := iv.Midpoint()
		if !(m > iv.Lower && m < iv.Upper) {
			return SplitResult{}, fmt.Errorf("%w: %s has width %g", ErrNoSplitDimension, p, iv.Width(false))
		}
		dim, mid = p, m
	}

	lowerIV, upperIV := b.Bounds[dim].Split(mid)
	lower := b.WithBound(dim, lowerIV)
	upper := b.WithBound(dim, upperIV)
	lower.Label, upper.Label = LabelUnknown, LabelUnknown

	return SplitResult{
		Lower:         lower,
		Upper:         upper,
		Dimension:     dim,
		Midpoint:      mid,
		WitnessGuided: guided,
	}, nil
}

// witnessDimension picks the parameter where witnesses disagree most.
func (b Box) witnessDimension(groups [][]Point, names []string) (string, bool) {
	best, bestScore := "", 0.0
	for _, p := range sortedCopy(names) {
		iv, ok := b.Bounds[p]
		if !ok || p == TimestepName {
			continue
		}
		vals := groupValues(groups, p)
		var centroids []float64
		for _, g := range vals {
			if len(g) > 0 {
				centroids = append(centroids, mean(g))
			}
		}
		if len(centroids) == 0 {
			continue
		}
		center := mean(centroids)

		var dist float64
		var n int
		for _, g := range vals {
			for _, v := range g {
				dist += math.Abs(v - center)
				n++
			}
		}
		score := 0.0
		if iv.OriginalWidth > 0 {
			score = (dist / float64(n)) / iv.OriginalWidth
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	return best, bestScore > 0
}

// widthOver returns the greatest width among the named non-timestep dims.
func (b Box) widthOver(names []string, normalize bool) float64 {
	p, ok := b.MaxWidthParameter(normalize, names)
	if !ok {
		return 0
	}
	return b.Bounds[p].Width(normalize)
}

func groupValues(groups [][]Point, name string) [][]float64 {
	out := make([][]float64, len(groups))
	for i, g := range groups {
		for _, pt := range g {
			if v, ok := pt.Values[name]; ok {
				out[i] = append(out[i], v)
			}
		}
	}
	return out
}

func hasPoints(groups [][]Point) bool {
	for _, g := range groups {
		if len(g) > 0 {
			return true
		}
	}
	return false
}

func mean(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s / float64(len(vs))
}
