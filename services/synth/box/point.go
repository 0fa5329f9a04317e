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
	"sort"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Label
// -----------------------------------------------------------------------------

// Label is the classification state of a box or point.
type Label string

const (
	// LabelUnknown is the initial state of every box.
	LabelUnknown Label = "unknown"

	// LabelTrue marks a region where the query holds everywhere.
	LabelTrue Label = "true"

	// LabelFalse marks a region where the query fails everywhere.
	LabelFalse Label = "false"

	// LabelDropped marks a region left unresolved, either because it fell
	// below the width tolerance or because the oracle failed on it.
	LabelDropped Label = "dropped"
)

// Terminal reports whether the label is a final classification.
func (l Label) Terminal() bool {
	return l == LabelTrue || l == LabelFalse || l == LabelDropped
}

// Valid reports whether l is one of the known labels.
func (l Label) Valid() bool {
	switch l {
	case LabelUnknown, LabelTrue, LabelFalse, LabelDropped:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Point
// -----------------------------------------------------------------------------

// Point is a witness assignment produced by an oracle.
//
// Points are immutable once created. The Values map is never written after
// construction, so boxes share points by value without copying the map.
type Point struct {
	Values   map[string]float64 `json:"values" yaml:"values"`
	Label    Label              `json:"label" yaml:"label"`
	Schedule string             `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// NewPoint copies values into a new point with the given label.
func NewPoint(values map[string]float64, label Label) Point {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Point{Values: cp, Label: label}
}

// Value returns the value assigned to name.
func (p Point) Value(name string) (float64, bool) {
	v, ok := p.Values[name]
	return v, ok
}

// Timestep returns the integer timestep of the point and whether it has one.
func (p Point) Timestep() (int, bool) {
	v, ok := p.Values[TimestepName]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return int(math.Round(v)), true
}

// WithLabel returns a copy of p carrying label l. The values map is shared.
func (p Point) WithLabel(l Label) Point {
	p.Label = l
	return p
}

// Key returns a canonical identity built from the sorted value mapping.
func (p Point) Key() string {
	names := make([]string, 0, len(p.Values))
	for k := range p.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	for i, n := range names {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(n)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatFloat(p.Values[n], 'g', -1, 64))
	}
	return sb.String()
}

// String renders the point with its label.
func (p Point) String() string {
	return fmt.Sprintf("Point(%s){%s}", p.Label, p.Key())
}
