// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package interval provides the one-dimensional bound primitive used by
// boxes during parameter synthesis.
//
// An Interval is [Lower, Upper) by default and [Lower, Upper] when
// ClosedUpper is set. OriginalWidth remembers the width of the dimension
// in the problem's initial box so that widths can be normalized no matter
// how far a box has been split.
package interval

import (
	"errors"
	"fmt"
	"math"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvertedBounds is returned when Lower > Upper.
	ErrInvertedBounds = errors.New("interval lower bound exceeds upper bound")

	// ErrNaNBound is returned when either bound is NaN.
	ErrNaNBound = errors.New("interval bound is NaN")

	// ErrNotMeeting is returned by Union when the intervals do not share a boundary.
	ErrNotMeeting = errors.New("intervals do not meet")
)

// -----------------------------------------------------------------------------
// Interval
// -----------------------------------------------------------------------------

// Interval is a one-dimensional bound.
//
// Intervals are values. Every operation returns a new Interval and never
// mutates the receiver.
type Interval struct {
	Lower         float64 `json:"lb" yaml:"lb"`
	Upper         float64 `json:"ub" yaml:"ub"`
	ClosedUpper   bool    `json:"closed_upper_bound,omitempty" yaml:"closed_upper_bound,omitempty"`
	OriginalWidth float64 `json:"original_width,omitempty" yaml:"original_width,omitempty"`
}

// New creates a half-open interval [lb, ub).
//
// Description:
//
//	Validates the bounds and records ub-lb as the original width.
//
// Inputs:
//
//	lb - Lower bound (inclusive).
//	ub - Upper bound (exclusive).
//
// Outputs:
//
//	Interval - The interval.
//	error - ErrInvertedBounds or ErrNaNBound when the bounds are invalid.
func New(lb, ub float64) (Interval, error) {
	if math.IsNaN(lb) || math.IsNaN(ub) {
		return Interval{}, ErrNaNBound
	}
	if lb > ub {
		return Interval{}, fmt.Errorf("%w: [%g, %g]", ErrInvertedBounds, lb, ub)
	}
	return Interval{Lower: lb, Upper: ub, OriginalWidth: ub - lb}, nil
}

// NewClosed creates a closed interval [lb, ub].
func NewClosed(lb, ub float64) (Interval, error) {
	iv, err := New(lb, ub)
	if err != nil {
		return Interval{}, err
	}
	iv.ClosedUpper = true
	return iv, nil
}

// Must panics if err is non-nil. Intended for literals in tests and tables.
func Must(iv Interval, err error) Interval {
	if err != nil {
		panic(err)
	}
	return iv
}

// Point returns the degenerate closed interval [v, v].
func Point(v float64) Interval {
	return Interval{Lower: v, Upper: v, ClosedUpper: true}
}

// Validate reports whether the bounds satisfy Lower <= Upper.
func (i Interval) Validate() error {
	if math.IsNaN(i.Lower) || math.IsNaN(i.Upper) {
		return ErrNaNBound
	}
	if i.Lower > i.Upper {
		return fmt.Errorf("%w: [%g, %g]", ErrInvertedBounds, i.Lower, i.Upper)
	}
	return nil
}

// IsPoint reports whether the interval is a single value.
func (i Interval) IsPoint() bool {
	return i.Lower == i.Upper
}

// Finite reports whether both bounds are finite.
func (i Interval) Finite() bool {
	return !math.IsInf(i.Lower, 0) && !math.IsInf(i.Upper, 0)
}

// Empty reports whether no value satisfies the interval. A half-open
// interval with equal bounds is empty.
func (i Interval) Empty() bool {
	if i.Lower > i.Upper {
		return true
	}
	return i.Lower == i.Upper && !i.ClosedUpper
}

// Contains reports whether v lies in the interval.
//
// Description:
//
//	Returns Lower <= v <= Upper for closed intervals and Lower <= v < Upper
//	otherwise. A degenerate interval [v, v] always contains v.
func (i Interval) Contains(v float64) bool {
	if v < i.Lower {
		return false
	}
	if i.ClosedUpper || i.IsPoint() {
		return v <= i.Upper
	}
	return v < i.Upper
}

// ContainsInterval reports whether o lies entirely within i.
func (i Interval) ContainsInterval(o Interval) bool {
	if o.Lower < i.Lower || o.Upper > i.Upper {
		return false
	}
	// o closed at a shared upper bound includes a value i excludes.
	return !(o.Upper == i.Upper && o.closedAtUpper() && !i.closedAtUpper())
}

// Intersects reports whether the two intervals share at least one value.
func (i Interval) Intersects(o Interval) bool {
	_, ok := i.Intersection(o)
	return ok
}

// Intersection returns the overlap of the two intervals.
//
// Description:
//
//	The lower bound is the larger lower bound and the upper bound the
//	smaller upper bound. When the upper bounds are equal the result is
//	closed only when both inputs are closed. The boolean result is false
//	when the overlap is empty, for example when the intervals only touch
//	at an open upper bound.
//
// Outputs:
//
//	Interval - The overlap. OriginalWidth is taken from the receiver.
//	bool - False when the intervals are disjoint.
func (i Interval) Intersection(o Interval) (Interval, bool) {
	lb := math.Max(i.Lower, o.Lower)
	var ub float64
	var closed bool
	switch {
	case i.Upper < o.Upper:
		ub, closed = i.Upper, i.closedAtUpper()
	case o.Upper < i.Upper:
		ub, closed = o.Upper, o.closedAtUpper()
	default:
		ub, closed = i.Upper, i.closedAtUpper() && o.closedAtUpper()
	}
	if lb > ub || (lb == ub && !closed) {
		return Interval{}, false
	}
	return Interval{Lower: lb, Upper: ub, ClosedUpper: closed, OriginalWidth: i.OriginalWidth}, true
}

func (i Interval) closedAtUpper() bool {
	return i.ClosedUpper || i.IsPoint()
}

// Meets reports whether the intervals share exactly one boundary and no
// interior. [0, 1) meets [1, 2) in either order.
func (i Interval) Meets(o Interval) bool {
	return i.Upper == o.Lower || o.Upper == i.Lower
}

// Equal compares bounds and the closed flag. OriginalWidth is ignored.
func (i Interval) Equal(o Interval) bool {
	return i.Lower == o.Lower && i.Upper == o.Upper && i.closedAtUpper() == o.closedAtUpper()
}

// Union joins two meeting intervals into one spanning both.
func (i Interval) Union(o Interval) (Interval, error) {
	if !i.Meets(o) {
		return Interval{}, fmt.Errorf("%w: %s and %s", ErrNotMeeting, i, o)
	}
	lo, hi := i, o
	if o.Lower < i.Lower {
		lo, hi = o, i
	}
	return Interval{
		Lower:         lo.Lower,
		Upper:         hi.Upper,
		ClosedUpper:   hi.ClosedUpper,
		OriginalWidth: i.OriginalWidth,
	}, nil
}

// Midpoint returns the geometric midpoint.
func (i Interval) Midpoint() float64 {
	return i.Lower + (i.Upper-i.Lower)/2
}

// MidpointOf returns a midpoint weighted toward the supplied witness groups.
//
// Description:
//
//	Each non-empty group contributes its centroid and the result is the
//	mean of the centroids, so the cut lands between the true and false
//	witnesses regardless of how many of each there are. Falls back to the
//	geometric midpoint when no group has values.
//
// Inputs:
//
//	groups - Witness values per group, typically {true values, false values}.
func (i Interval) MidpointOf(groups [][]float64) float64 {
	var sum float64
	var n int
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		sum += mean(g)
		n++
	}
	if n == 0 {
		return i.Midpoint()
	}
	return sum / float64(n)
}

// Width returns Upper-Lower, divided by OriginalWidth when normalize is set
// and the original width is positive.
func (i Interval) Width(normalize bool) float64 {
	w := i.Upper - i.Lower
	if normalize && i.OriginalWidth > 0 {
		return w / i.OriginalWidth
	}
	return w
}

// ClosedRepresentative returns the largest value inside the interval.
//
// Description:
//
//	For a closed interval this is Upper. For an open upper bound it is the
//	next representable float below Upper, which keeps corner points inside
//	the interval.
func (i Interval) ClosedRepresentative() float64 {
	if i.closedAtUpper() {
		return i.Upper
	}
	return math.Nextafter(i.Upper, i.Lower)
}

// Split divides the interval at mid into [Lower, mid) and [mid, Upper).
// The upper half inherits the closed flag and both keep OriginalWidth.
func (i Interval) Split(mid float64) (Interval, Interval) {
	lower := Interval{Lower: i.Lower, Upper: mid, OriginalWidth: i.OriginalWidth}
	upper := Interval{Lower: mid, Upper: i.Upper, ClosedUpper: i.ClosedUpper, OriginalWidth: i.OriginalWidth}
	return lower, upper
}

// String renders the interval in mathematical notation.
func (i Interval) String() string {
	closing := ")"
	if i.closedAtUpper() {
		closing = "]"
	}
	return fmt.Sprintf("[%g, %g%s", i.Lower, i.Upper, closing)
}

func mean(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s / float64(len(vs))
}
