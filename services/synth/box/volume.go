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
)

// VolumeOptions controls which dimensions contribute to Volume.
type VolumeOptions struct {
	// Parameters restricts the product to the named dimensions.
	// Nil means every dimension of the box.
	Parameters []string

	// IgnoreZeroWidth drops zero-width dimensions from the product.
	IgnoreZeroWidth bool

	// Normalize divides each width by its original width and the
	// timestep count by ScheduleLength.
	Normalize bool

	// ScheduleLength is the number of timepoints in the full schedule.
	// Only used when Normalize is set; zero leaves the count unnormalized.
	ScheduleLength int
}

// Volume returns the product of dimension widths.
//
// Description:
//
//	Continuous dimensions contribute their width. The timestep dimension
//	contributes the number of timepoints it spans, ub-lb+1, or that
//	count as a fraction of the schedule when normalized. The volume is
//	undefined when no continuous dimension remains after filtering.
//
// Outputs:
//
//	float64 - The volume.
//	error - ErrUndefinedVolume, ErrNegativeWidth or ErrUnknownDimension.
func (b Box) Volume(opts VolumeOptions) (float64, error) {
	names := opts.Parameters
	if names == nil {
		names = b.Dimensions()
	}

	product, continuous := 1.0, 0
	timepoints := 1.0
	for _, n := range names {
		iv, ok := b.Bounds[n]
		if !ok {
			return math.NaN(), fmt.Errorf("%w: %s", ErrUnknownDimension, n)
		}
		if n == TimestepName {
			timepoints = math.Ceil(iv.Upper) + 1 - math.Floor(iv.Lower)
			if !iv.ClosedUpper && !iv.IsPoint() {
				timepoints--
			}
			if opts.Normalize && opts.ScheduleLength > 0 {
				timepoints /= float64(opts.ScheduleLength)
			}
			continue
		}
		w := iv.Width(opts.Normalize)
		if w < 0 {
			return math.NaN(), fmt.Errorf("%w: %s=%g", ErrNegativeWidth, n, w)
		}
		if w == 0 && opts.IgnoreZeroWidth {
			continue
		}
		product *= w
		continuous++
	}
	if continuous == 0 {
		return math.NaN(), ErrUndefinedVolume
	}
	return product * timepoints, nil
}

func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
