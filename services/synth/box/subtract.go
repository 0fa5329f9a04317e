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

import "github.com/AleutianAI/AleutianSynth/services/synth/interval"

// Subtract returns the part of b not covered by o as disjoint boxes.
//
// Description:
//
//	Decomposes b recursively. A box disjoint from o is kept whole and a
//	box contained in o contributes nothing. Otherwise b is split at the
//	first boundary of o that falls strictly inside b; the piece outside o
//	is kept and the piece overlapping o is tested again. Overlaps that
//	differ only on a boundary face contribute nothing.
//
// Outputs:
//
//	[]Box - Pieces of b outside o. Empty when o covers b.
func (b Box) Subtract(o Box) []Box {
	if !b.Intersects(o) {
		return []Box{b}
	}
	if o.Contains(b) {
		return nil
	}
	for _, name := range b.Dimensions() {
		iv := b.Bounds[name]
		oiv, ok := o.Bounds[name]
		if !ok {
			continue
		}
		if oiv.Lower > iv.Lower && oiv.Lower <= iv.Upper {
			outside, overlap := b.cut(name, oiv.Lower)
			return append([]Box{outside}, overlap.Subtract(o)...)
		}
		if oiv.Upper < iv.Upper && oiv.Upper >= iv.Lower {
			at := oiv.Upper
			if name == TimestepName {
				at++
			}
			overlap, outside := b.cut(name, at)
			return append(overlap.Subtract(o), outside)
		}
	}
	return nil
}

// cut splits b at value c of one dimension into the part below c and the
// part from c upward. The timestep dimension is cut between integers.
func (b Box) cut(name string, c float64) (Box, Box) {
	iv := b.Bounds[name]
	var lowerIV, upperIV interval.Interval
	if name == TimestepName {
		lowerIV = interval.Interval{Lower: iv.Lower, Upper: c - 1, ClosedUpper: true, OriginalWidth: iv.OriginalWidth}
		upperIV = interval.Interval{Lower: c, Upper: iv.Upper, ClosedUpper: iv.ClosedUpper, OriginalWidth: iv.OriginalWidth}
	} else {
		lowerIV, upperIV = iv.Split(c)
	}
	return b.WithBound(name, lowerIV), b.WithBound(name, upperIV)
}
