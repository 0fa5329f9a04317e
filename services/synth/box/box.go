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
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
)

// TimestepName is the reserved dimension holding the discrete step index.
// It is never split and counts timepoints rather than width in volumes.
const TimestepName = "timestep"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoBounds is returned when a box is created without dimensions.
	ErrNoBounds = errors.New("box has no bounds")

	// ErrLabelTransition is returned when relabeling a terminal box.
	ErrLabelTransition = errors.New("box label is already terminal")

	// ErrUnknownDimension is returned when an operation names a missing dimension.
	ErrUnknownDimension = errors.New("unknown box dimension")

	// ErrNoSplitDimension is returned when the box has no splittable dimension.
	ErrNoSplitDimension = errors.New("box has no splittable dimension")

	// ErrUndefinedVolume is returned when no dimension contributes to the volume.
	ErrUndefinedVolume = errors.New("volume undefined without dimensions")

	// ErrNegativeWidth is returned when a dimension has a negative width.
	ErrNegativeWidth = errors.New("negative dimension width")

	// ErrDimensionMismatch is returned when two boxes span different dimensions.
	ErrDimensionMismatch = errors.New("boxes span different dimensions")
)

// -----------------------------------------------------------------------------
// Box
// -----------------------------------------------------------------------------

// Box is an axis-aligned hyperrectangle over the parameter space.
//
// Description:
//
//	Boxes are treated as immutable values. Operations that narrow bounds or
//	attach points return a new Box; the receiver is never changed. Cached
//	points always lie within the box's own bounds.
//
// Thread Safety: Safe to share between goroutines once constructed.
type Box struct {
	Bounds   map[string]interval.Interval `json:"bounds" yaml:"bounds"`
	Label    Label                        `json:"label" yaml:"label"`
	Points   []Point                      `json:"points,omitempty" yaml:"points,omitempty"`
	Schedule string                       `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	byStep map[int][]int
}

// New creates an unknown-labeled box from the given bounds.
//
// Description:
//
//	Validates every interval and copies the map so the caller keeps
//	ownership of its argument.
//
// Inputs:
//
//	bounds - Interval per dimension. Must not be empty.
//
// Outputs:
//
//	Box - The new box.
//	error - ErrNoBounds or an interval validation error.
func New(bounds map[string]interval.Interval) (Box, error) {
	if len(bounds) == 0 {
		return Box{}, ErrNoBounds
	}
	cp := make(map[string]interval.Interval, len(bounds))
	for name, iv := range bounds {
		if err := iv.Validate(); err != nil {
			return Box{}, fmt.Errorf("dimension %s: %w", name, err)
		}
		cp[name] = iv
	}
	return Box{Bounds: cp, Label: LabelUnknown}, nil
}

// MustNew is New that panics on error. Intended for tests and literals.
func MustNew(bounds map[string]interval.Interval) Box {
	b, err := New(bounds)
	if err != nil {
		panic(err)
	}
	return b
}

// Dimensions returns the sorted dimension names, timestep included.
func (b Box) Dimensions() []string {
	names := make([]string, 0, len(b.Bounds))
	for k := range b.Bounds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Parameters returns the sorted dimension names excluding timestep.
func (b Box) Parameters() []string {
	names := make([]string, 0, len(b.Bounds))
	for k := range b.Bounds {
		if k != TimestepName {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Bound returns the interval of one dimension.
func (b Box) Bound(name string) (interval.Interval, bool) {
	iv, ok := b.Bounds[name]
	return iv, ok
}

// Timestep returns the timestep interval, if the box has one.
func (b Box) Timestep() (interval.Interval, bool) {
	return b.Bound(TimestepName)
}

// WithLabel returns a copy carrying the terminal label l.
//
// Description:
//
//	Labels move one way. Relabeling a box that is already terminal returns
//	ErrLabelTransition, except when the label is unchanged.
func (b Box) WithLabel(l Label) (Box, error) {
	if b.Label.Terminal() && b.Label != l {
		return b, fmt.Errorf("%w: %s -> %s", ErrLabelTransition, b.Label, l)
	}
	b.Label = l
	return b, nil
}

// WithBound returns a copy with one dimension replaced. Points outside the
// new bounds are dropped.
func (b Box) WithBound(name string, iv interval.Interval) Box {
	bounds := b.cloneBounds()
	bounds[name] = iv
	out := Box{Bounds: bounds, Label: b.Label, Schedule: b.Schedule}
	return out.withPoints(b.Points)
}

// AddPoint returns a copy with p attached when p lies inside the box.
func (b Box) AddPoint(p Point) Box {
	if !b.ContainsPoint(p) {
		return b
	}
	key := p.Key()
	for _, existing := range b.Points {
		if existing.Label == p.Label && existing.Key() == key {
			return b
		}
	}
	pts := make([]Point, len(b.Points), len(b.Points)+1)
	copy(pts, b.Points)
	return b.withPoints(append(pts, p))
}

// withPoints attaches the contained subset of pts and rebuilds the
// per-timestep index.
func (b Box) withPoints(pts []Point) Box {
	var kept []Point
	for _, p := range pts {
		if b.ContainsPoint(p) {
			kept = append(kept, p)
		}
	}
	b.Points = kept
	b.byStep = indexByStep(kept)
	return b
}

func indexByStep(pts []Point) map[int][]int {
	idx := make(map[int][]int)
	for i, p := range pts {
		if step, ok := p.Timestep(); ok {
			idx[step] = append(idx[step], i)
		}
	}
	return idx
}

// PointsAt returns the cached points at one timestep.
func (b Box) PointsAt(step int) []Point {
	idx := b.byStep
	if idx == nil {
		idx = indexByStep(b.Points)
	}
	out := make([]Point, 0, len(idx[step]))
	for _, i := range idx[step] {
		out = append(out, b.Points[i])
	}
	return out
}

// TruePoints returns the cached points labeled true.
func (b Box) TruePoints() []Point {
	return b.pointsLabeled(LabelTrue)
}

// FalsePoints returns the cached points labeled false.
func (b Box) FalsePoints() []Point {
	return b.pointsLabeled(LabelFalse)
}

func (b Box) pointsLabeled(l Label) []Point {
	var out []Point
	for _, p := range b.Points {
		if p.Label == l {
			out = append(out, p)
		}
	}
	return out
}

func (b Box) cloneBounds() map[string]interval.Interval {
	cp := make(map[string]interval.Interval, len(b.Bounds))
	for k, v := range b.Bounds {
		cp[k] = v
	}
	return cp
}

// -----------------------------------------------------------------------------
// Identity and ordering
// -----------------------------------------------------------------------------

// Key returns a canonical string of the bound values. Two boxes with equal
// keys are Equal. Points, labels and schedule are ignored.
func (b Box) Key() string {
	var sb strings.Builder
	for i, name := range b.Dimensions() {
		if i > 0 {
			sb.WriteByte(';')
		}
		iv := b.Bounds[name]
		sb.WriteString(name)
		sb.WriteString("=[")
		sb.WriteString(strconv.FormatFloat(iv.Lower, 'g', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(iv.Upper, 'g', -1, 64))
		if iv.ClosedUpper || iv.IsPoint() {
			sb.WriteByte(']')
		} else {
			sb.WriteByte(')')
		}
	}
	return sb.String()
}

// Equal reports whether both boxes have the same dimensions and bounds.
func (b Box) Equal(o Box) bool {
	if len(b.Bounds) != len(o.Bounds) {
		return false
	}
	for name, iv := range b.Bounds {
		oiv, ok := o.Bounds[name]
		if !ok || !iv.Equal(oiv) {
			return false
		}
	}
	return true
}

// Less orders boxes for prioritized processing.
//
// Description:
//
//	A box sorts first when it carries more true points. On a tie the box
//	with the later timestep lower bound sorts first, and after that the
//	box whose normalized width compares greater.
func (b Box) Less(o Box) bool {
	st, ot := len(b.TruePoints()), len(o.TruePoints())
	if st != ot {
		return st > ot
	}
	bs, _ := b.Timestep()
	os, _ := o.Timestep()
	if bs.Lower != os.Lower {
		return bs.Lower > os.Lower
	}
	// Greater width first, matching the established box ordering.
	return b.NormalizedWidth() > o.NormalizedWidth()
}

// -----------------------------------------------------------------------------
// Geometry
// -----------------------------------------------------------------------------

// Contains reports whether every interval of o lies within b.
func (b Box) Contains(o Box) bool {
	for name, iv := range b.Bounds {
		oiv, ok := o.Bounds[name]
		if !ok || !iv.ContainsInterval(oiv) {
			return false
		}
	}
	return true
}

// ContainsPoint reports whether p has a value inside every dimension of b.
func (b Box) ContainsPoint(p Point) bool {
	for name, iv := range b.Bounds {
		v, ok := p.Values[name]
		if !ok || !iv.Contains(v) {
			return false
		}
	}
	return true
}

// Intersects reports whether the two boxes share any value in every dimension.
func (b Box) Intersects(o Box) bool {
	_, ok := b.Intersect(o)
	return ok
}

// Intersect returns the overlap of two boxes.
//
// Description:
//
//	Dimensions present in only one box keep that box's interval. Points
//	from both boxes that lie in the overlap are kept. The result carries
//	the receiver's label and schedule.
//
// Outputs:
//
//	Box - The overlap.
//	bool - False when the boxes are disjoint in some dimension.
func (b Box) Intersect(o Box) (Box, bool) {
	bounds := make(map[string]interval.Interval, len(b.Bounds))
	for name, iv := range b.Bounds {
		oiv, ok := o.Bounds[name]
		if !ok {
			bounds[name] = iv
			continue
		}
		meet, ok := iv.Intersection(oiv)
		if !ok {
			return Box{}, false
		}
		bounds[name] = meet
	}
	for name, oiv := range o.Bounds {
		if _, ok := bounds[name]; !ok {
			bounds[name] = oiv
		}
	}
	out := Box{Bounds: bounds, Label: b.Label, Schedule: b.Schedule}
	pts := make([]Point, 0, len(b.Points)+len(o.Points))
	pts = append(pts, b.Points...)
	pts = append(pts, o.Points...)
	return out.withPoints(dedupe(pts)), true
}

// Project returns a copy restricted to the named dimensions. Unknown names
// are ignored and the receiver is unchanged.
func (b Box) Project(names []string) Box {
	bounds := make(map[string]interval.Interval, len(names))
	for _, n := range names {
		if iv, ok := b.Bounds[n]; ok {
			bounds[n] = iv
		}
	}
	out := Box{Bounds: bounds, Label: b.Label, Schedule: b.Schedule}
	out.Points = append([]Point(nil), b.Points...)
	out.byStep = indexByStep(out.Points)
	return out
}

// Corners enumerates the vertices of the box over the named dimensions.
//
// Description:
//
//	A point interval contributes one value. A proper interval contributes
//	its lower bound and its closed representative upper bound, doubling
//	the number of corners. A nil names slice selects every dimension.
//	Corners carry the unknown label.
func (b Box) Corners(names []string) []Point {
	if names == nil {
		names = b.Dimensions()
	} else {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}
	corners := []map[string]float64{{}}
	for _, n := range names {
		iv, ok := b.Bounds[n]
		if !ok {
			continue
		}
		if iv.IsPoint() {
			for _, c := range corners {
				c[n] = iv.Lower
			}
			continue
		}
		hi := iv.ClosedRepresentative()
		if n == TimestepName && !iv.ClosedUpper {
			hi = iv.Upper - 1
		}
		next := make([]map[string]float64, 0, 2*len(corners))
		for _, c := range corners {
			next = append(next, withValue(c, n, iv.Lower))
		}
		for _, c := range corners {
			next = append(next, withValue(c, n, hi))
		}
		corners = next
	}
	out := make([]Point, len(corners))
	for i, c := range corners {
		out[i] = Point{Values: c, Label: LabelUnknown, Schedule: b.Schedule}
	}
	return out
}

func withValue(m map[string]float64, k string, v float64) map[string]float64 {
	cp := make(map[string]float64, len(m)+1)
	for kk, vv := range m {
		cp[kk] = vv
	}
	cp[k] = v
	return cp
}

// Finite reports whether every interval is finite.
func (b Box) Finite() bool {
	for _, iv := range b.Bounds {
		if !iv.Finite() {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Widths
// -----------------------------------------------------------------------------

// MaxWidthParameter returns the non-timestep dimension of greatest width.
// Ties break on the sorted name so the choice is deterministic. An empty
// names slice considers every parameter.
func (b Box) MaxWidthParameter(normalize bool, names []string) (string, bool) {
	if len(names) == 0 {
		names = b.Parameters()
	}
	best, bestW, found := "", -1.0, false
	for _, n := range names {
		if n == TimestepName {
			continue
		}
		iv, ok := b.Bounds[n]
		if !ok {
			continue
		}
		w := iv.Width(normalize)
		if w > bestW || (w == bestW && n < best) {
			best, bestW, found = n, w, true
		}
	}
	return best, found
}

// Width returns the greatest parameter width, optionally normalized.
func (b Box) Width(normalize bool) float64 {
	p, ok := b.MaxWidthParameter(normalize, nil)
	if !ok {
		return 0
	}
	return b.Bounds[p].Width(normalize)
}

// NormalizedWidth returns the greatest normalized parameter width.
func (b Box) NormalizedWidth() float64 {
	return b.Width(true)
}

// String renders the bounds, label and point counts.
func (b Box) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Box(%s |+|=%d |-|=%d){", b.Label, len(b.TruePoints()), len(b.FalsePoints()))
	for i, n := range b.Dimensions() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", n, b.Bounds[n])
	}
	sb.WriteByte('}')
	return sb.String()
}

func dedupe(pts []Point) []Point {
	seen := make(map[string]struct{}, len(pts))
	out := pts[:0:0]
	for _, p := range pts {
		k := string(p.Label) + "|" + p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
