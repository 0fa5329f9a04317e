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
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
)

func iv(lb, ub float64) interval.Interval {
	return interval.Must(interval.New(lb, ub))
}

func closed(lb, ub float64) interval.Interval {
	return interval.Must(interval.NewClosed(lb, ub))
}

func pt(label Label, kv ...float64) Point {
	names := []string{"x", "y", TimestepName}
	values := make(map[string]float64)
	for i, v := range kv {
		values[names[i]] = v
	}
	return NewPoint(values, label)
}

func unitSquare() Box {
	return MustNew(map[string]interval.Interval{
		"x":          iv(0, 1),
		"y":          iv(0, 1),
		TimestepName: closed(0, 10),
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoBounds)

	_, err = New(map[string]interval.Interval{"x": {Lower: 2, Upper: 1}})
	assert.ErrorIs(t, err, interval.ErrInvertedBounds)

	b, err := New(map[string]interval.Interval{"x": iv(0, 1)})
	require.NoError(t, err)
	assert.Equal(t, LabelUnknown, b.Label)
}

func TestBox_WithLabel(t *testing.T) {
	b := unitSquare()

	tb, err := b.WithLabel(LabelTrue)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, tb.Label)
	assert.Equal(t, LabelUnknown, b.Label, "receiver must not change")

	_, err = tb.WithLabel(LabelFalse)
	assert.ErrorIs(t, err, ErrLabelTransition)

	same, err := tb.WithLabel(LabelTrue)
	require.NoError(t, err)
	assert.Equal(t, LabelTrue, same.Label)
}

func TestBox_EqualIgnoresPointsAndLabel(t *testing.T) {
	a := unitSquare()
	b := unitSquare().AddPoint(pt(LabelTrue, 0.5, 0.5, 1))
	b, _ = b.WithLabel(LabelTrue)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())

	c := unitSquare().WithBound("x", iv(0, 0.5))
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestBox_AddPoint(t *testing.T) {
	b := unitSquare()

	inside := pt(LabelTrue, 0.2, 0.3, 4)
	outside := pt(LabelTrue, 2, 0.3, 4)

	b2 := b.AddPoint(inside).AddPoint(outside).AddPoint(inside)
	assert.Len(t, b2.Points, 1)
	assert.Empty(t, b.Points)
	assert.Len(t, b2.PointsAt(4), 1)
	assert.Empty(t, b2.PointsAt(3))
	assert.Len(t, b2.TruePoints(), 1)
	assert.Empty(t, b2.FalsePoints())
}

func TestBox_Corners(t *testing.T) {
	b := MustNew(map[string]interval.Interval{
		"x": iv(0, 1),
		"y": interval.Point(2),
		"z": closed(3, 4),
	})

	corners := b.Corners([]string{"x", "y", "z"})
	require.Len(t, corners, 4)

	var xs, zs []float64
	for _, c := range corners {
		assert.Equal(t, 2.0, c.Values["y"])
		xs = append(xs, c.Values["x"])
		zs = append(zs, c.Values["z"])
		assert.True(t, b.ContainsPoint(c), "corner %v must lie inside the box", c)
	}
	assert.Contains(t, xs, 0.0)
	assert.Contains(t, xs, math.Nextafter(1, 0))
	assert.NotContains(t, xs, 1.0)
	assert.Contains(t, zs, 4.0)

	t.Run("subset of dimensions", func(t *testing.T) {
		only := b.Corners([]string{"x"})
		require.Len(t, only, 2)
		for _, c := range only {
			assert.Len(t, c.Values, 1)
		}
	})
}

func TestBox_Project(t *testing.T) {
	b := unitSquare()
	p := b.Project([]string{"y", "x", "missing"})

	assert.Equal(t, []string{"x", "y"}, p.Dimensions())
	assert.Len(t, b.Bounds, 3, "projection must not modify the receiver")

	q := b.Project([]string{"x", "y"})
	assert.True(t, p.Equal(q), "projection is order independent")
}

func TestBox_Volume(t *testing.T) {
	cube := MustNew(map[string]interval.Interval{"x": iv(0, 1), "y": iv(0, 1)})

	v, err := cube.Volume(VolumeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	t.Run("zero width dimension ignored", func(t *testing.T) {
		flat := cube.WithBound("z", interval.Point(5))
		v, err := flat.Volume(VolumeOptions{IgnoreZeroWidth: true})
		require.NoError(t, err)
		assert.Equal(t, 1.0, v)

		v, err = flat.Volume(VolumeOptions{})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v)
	})

	t.Run("timestep counts timepoints", func(t *testing.T) {
		b := unitSquare()
		v, err := b.Volume(VolumeOptions{})
		require.NoError(t, err)
		assert.Equal(t, 11.0, v)

		v, err = b.Volume(VolumeOptions{Normalize: true, ScheduleLength: 11})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, v, 1e-12)
	})

	t.Run("point is undefined", func(t *testing.T) {
		p := MustNew(map[string]interval.Interval{"x": interval.Point(1)})
		_, err := p.Volume(VolumeOptions{IgnoreZeroWidth: true})
		assert.ErrorIs(t, err, ErrUndefinedVolume)

		_, err = p.Volume(VolumeOptions{Parameters: []string{}})
		assert.ErrorIs(t, err, ErrUndefinedVolume)
	})

	t.Run("negative width", func(t *testing.T) {
		bad := Box{Bounds: map[string]interval.Interval{"x": {Lower: 1, Upper: 0}}}
		_, err := bad.Volume(VolumeOptions{})
		assert.ErrorIs(t, err, ErrNegativeWidth)
	})

	t.Run("unknown dimension", func(t *testing.T) {
		_, err := cube.Volume(VolumeOptions{Parameters: []string{"w"}})
		assert.ErrorIs(t, err, ErrUnknownDimension)
	})
}

func TestBox_Less(t *testing.T) {
	base := unitSquare()

	t.Run("more true points first", func(t *testing.T) {
		a := base.AddPoint(pt(LabelTrue, 0.1, 0.1, 0)).AddPoint(pt(LabelTrue, 0.2, 0.2, 0))
		b := base.AddPoint(pt(LabelTrue, 0.1, 0.1, 0))
		assert.True(t, a.Less(b))
		assert.False(t, b.Less(a))
	})

	t.Run("later timestep first", func(t *testing.T) {
		a := base.WithBound(TimestepName, closed(5, 10))
		b := base.WithBound(TimestepName, closed(0, 10))
		assert.True(t, a.Less(b))
		assert.False(t, b.Less(a))
	})

	t.Run("normalized width breaks the last tie", func(t *testing.T) {
		wide := base
		narrow := base.WithBound("x", interval.Interval{Lower: 0, Upper: 0.5, OriginalWidth: 1})
		narrow = narrow.WithBound("y", interval.Interval{Lower: 0, Upper: 0.5, OriginalWidth: 1})
		assert.True(t, wide.Less(narrow))
		assert.False(t, narrow.Less(wide))
	})

	t.Run("sortable", func(t *testing.T) {
		boxes := []Box{
			base.WithBound(TimestepName, closed(0, 10)),
			base.AddPoint(pt(LabelTrue, 0.5, 0.5, 3)),
			base.WithBound(TimestepName, closed(7, 10)),
		}
		sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Less(boxes[j]) })
		assert.Len(t, boxes[0].TruePoints(), 1)
		ts, _ := boxes[1].Timestep()
		assert.Equal(t, 7.0, ts.Lower)
	})
}

func TestBox_Intersect(t *testing.T) {
	a := MustNew(map[string]interval.Interval{"x": closed(0, 1), "y": closed(0, 1)})
	b := MustNew(map[string]interval.Interval{"x": closed(0.5, 1.5), "y": closed(0, 1)})

	got, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, 0.5, got.Bounds["x"].Lower)
	assert.Equal(t, 1.0, got.Bounds["x"].Upper)

	c := MustNew(map[string]interval.Interval{"x": closed(2, 3), "y": closed(0, 1)})
	_, ok = a.Intersect(c)
	assert.False(t, ok)
	assert.False(t, a.Intersects(c))

	self, ok := a.Intersect(a)
	require.True(t, ok)
	assert.True(t, self.Equal(a))
}

func TestBox_Contains(t *testing.T) {
	outer := unitSquare()
	inner := outer.WithBound("x", iv(0.25, 0.5))
	assert.True(t, outer.Contains(inner))
	assert.False(t, inner.Contains(outer))
	assert.True(t, outer.ContainsPoint(pt(LabelTrue, 0, 0.99, 10)))
	assert.False(t, outer.ContainsPoint(pt(LabelTrue, 1, 0.5, 3)))
	assert.False(t, outer.ContainsPoint(NewPoint(map[string]float64{"x": 0.5}, LabelTrue)))
}

func TestBox_MergeCandidates(t *testing.T) {
	left := MustNew(map[string]interval.Interval{"x": iv(0, 1), "y": iv(0, 1)})
	right := MustNew(map[string]interval.Interval{"x": iv(1, 2), "y": iv(0, 1)})
	diagonal := MustNew(map[string]interval.Interval{"x": iv(1, 2), "y": iv(1, 2)})
	shifted := MustNew(map[string]interval.Interval{"x": iv(1, 2), "y": iv(0.5, 1)})

	dim, ok := left.MeetingDimension(right)
	require.True(t, ok)
	assert.Equal(t, "x", dim)

	_, ok = left.MeetingDimension(diagonal)
	assert.False(t, ok, "meeting in two dimensions disqualifies")

	_, ok = left.MeetingDimension(shifted)
	assert.False(t, ok, "unequal remaining dimension disqualifies")

	cands := left.MergeCandidates([]Box{left, right, diagonal, shifted})
	require.Len(t, cands, 1)
	assert.True(t, cands[0].Equal(right))

	merged, err := left.Merge(right)
	require.NoError(t, err)
	assert.Equal(t, 0.0, merged.Bounds["x"].Lower)
	assert.Equal(t, 2.0, merged.Bounds["x"].Upper)

	_, err = left.Merge(diagonal)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	t.Run("one dimension", func(t *testing.T) {
		a := MustNew(map[string]interval.Interval{"x": iv(0, 1)})
		b := MustNew(map[string]interval.Interval{"x": iv(1, 3)})
		_, ok := a.MeetingDimension(b)
		assert.True(t, ok)
	})

	t.Run("discrete timestep", func(t *testing.T) {
		a := left.WithBound(TimestepName, closed(0, 4))
		b := left.WithBound(TimestepName, closed(5, 9))
		m, err := a.Merge(b)
		require.NoError(t, err)
		ts, _ := m.Timestep()
		assert.Equal(t, 0.0, ts.Lower)
		assert.Equal(t, 9.0, ts.Upper)
	})
}

func TestBox_Subtract(t *testing.T) {
	outer := MustNew(map[string]interval.Interval{"x": iv(0, 4), "y": iv(0, 4)})

	t.Run("disjoint keeps whole box", func(t *testing.T) {
		far := MustNew(map[string]interval.Interval{"x": iv(10, 11), "y": iv(0, 4)})
		got := outer.Subtract(far)
		require.Len(t, got, 1)
		assert.True(t, got[0].Equal(outer))
	})

	t.Run("covered box vanishes", func(t *testing.T) {
		assert.Empty(t, outer.Subtract(outer))
	})

	t.Run("hole in the middle", func(t *testing.T) {
		hole := MustNew(map[string]interval.Interval{"x": iv(1, 2), "y": iv(1, 2)})
		pieces := outer.Subtract(hole)
		require.NotEmpty(t, pieces)

		var total float64
		for i, p := range pieces {
			v, err := p.Volume(VolumeOptions{})
			require.NoError(t, err)
			total += v
			assert.False(t, p.Intersects(hole), "piece %s overlaps the hole", p)
			for _, q := range pieces[i+1:] {
				assert.False(t, p.Intersects(q), "pieces %s and %s overlap", p, q)
			}
		}
		assert.InDelta(t, 15.0, total, 1e-9)
	})

	t.Run("timestep is cut between integers", func(t *testing.T) {
		a := MustNew(map[string]interval.Interval{"x": iv(0, 1), TimestepName: closed(0, 10)})
		b := MustNew(map[string]interval.Interval{"x": iv(0, 1), TimestepName: closed(3, 5)})
		pieces := a.Subtract(b)
		require.Len(t, pieces, 2)
		var counts float64
		for _, p := range pieces {
			v, err := p.Volume(VolumeOptions{})
			require.NoError(t, err)
			counts += v
		}
		assert.Equal(t, 8.0, counts)
	})
}
