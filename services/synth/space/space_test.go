// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package space

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
)

func rect(label box.Label, x0, x1, y0, y1 float64) box.Box {
	b := box.MustNew(map[string]interval.Interval{
		"x": interval.Must(interval.New(x0, x1)),
		"y": interval.Must(interval.New(y0, y1)),
	})
	b, err := b.WithLabel(label)
	if err != nil {
		panic(err)
	}
	return b
}

// quadrants splits the unit square into four labeled boxes.
func quadrants(label box.Label) []box.Box {
	return []box.Box{
		rect(label, 0, 0.5, 0, 0.5),
		rect(label, 0.5, 1, 0, 0.5),
		rect(label, 0, 0.5, 0.5, 1),
		rect(label, 0.5, 1, 0.5, 1),
	}
}

func volume(t *testing.T, s ParameterSpace, l box.Label) float64 {
	t.Helper()
	v, err := s.Volume(l, box.VolumeOptions{})
	require.NoError(t, err)
	return v
}

func TestParameterSpace_AddBox(t *testing.T) {
	var s ParameterSpace
	require.NoError(t, s.AddBox(rect(box.LabelTrue, 0, 1, 0, 1)))
	require.NoError(t, s.AddBox(rect(box.LabelFalse, 1, 2, 0, 1)))
	require.NoError(t, s.AddBox(rect(box.LabelDropped, 2, 3, 0, 1)))
	require.NoError(t, s.AddBox(box.MustNew(map[string]interval.Interval{"x": interval.Point(1)})))

	assert.Len(t, s.TrueBoxes, 1)
	assert.Len(t, s.FalseBoxes, 1)
	assert.Len(t, s.DroppedBoxes, 1)
	assert.Len(t, s.UnknownBoxes, 1)
	assert.Equal(t, 4, s.Len())

	err := s.AddBox(box.Box{Label: "maybe"})
	assert.ErrorIs(t, err, ErrUnlabeledBox)
}

func TestParameterSpace_AddPoint(t *testing.T) {
	var s ParameterSpace
	require.NoError(t, s.AddPoint(box.NewPoint(map[string]float64{"x": 1}, box.LabelTrue)))
	require.NoError(t, s.AddPoint(box.NewPoint(map[string]float64{"x": 2}, box.LabelFalse)))
	assert.Len(t, s.TruePoints, 1)
	assert.Len(t, s.FalsePoints, 1)

	err := s.AddPoint(box.NewPoint(nil, box.LabelUnknown))
	assert.ErrorIs(t, err, ErrUnlabeledPoint)
}

func TestIntersect_SelfIsIdempotent(t *testing.T) {
	p := ParameterSpace{
		TrueBoxes:  quadrants(box.LabelTrue)[:2],
		FalseBoxes: quadrants(box.LabelFalse)[2:],
	}

	got := Intersect(p, p)
	assert.Len(t, got.TrueBoxes, 2)
	assert.Len(t, got.FalseBoxes, 2)
	assert.InDelta(t, volume(t, p, box.LabelTrue), volume(t, got, box.LabelTrue), 1e-12)
	assert.InDelta(t, volume(t, p, box.LabelFalse), volume(t, got, box.LabelFalse), 1e-12)
	for i, b := range p.TrueBoxes {
		assert.True(t, b.Equal(got.TrueBoxes[i]))
	}
}

func TestIntersect_Overlap(t *testing.T) {
	a := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 0, 2, 0, 1)}}
	b := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 1, 3, 0, 1), rect(box.LabelTrue, 5, 6, 0, 1)}}

	got := Intersect(a, b)
	require.Len(t, got.TrueBoxes, 1)
	assert.Equal(t, 1.0, got.TrueBoxes[0].Bounds["x"].Lower)
	assert.Equal(t, 2.0, got.TrueBoxes[0].Bounds["x"].Upper)
	assert.Empty(t, got.FalseBoxes)
}

func TestIntersect_DropsSlivers(t *testing.T) {
	a := box.MustNew(map[string]interval.Interval{"x": interval.Must(interval.NewClosed(0, 1))})
	b := box.MustNew(map[string]interval.Interval{"x": interval.Must(interval.NewClosed(1, 2))})
	got := Intersect(ParameterSpace{TrueBoxes: []box.Box{a}}, ParameterSpace{TrueBoxes: []box.Box{b}})
	assert.Empty(t, got.TrueBoxes)
}

func TestSymmetricDifference(t *testing.T) {
	t.Run("identical spaces cancel", func(t *testing.T) {
		p := ParameterSpace{TrueBoxes: quadrants(box.LabelTrue)}
		got := SymmetricDifference(p, p)
		assert.Empty(t, got.TrueBoxes)
		assert.Empty(t, got.FalseBoxes)
	})

	t.Run("partial overlap", func(t *testing.T) {
		a := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 0, 2, 0, 2)}}
		b := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 1, 3, 0, 2)}}
		got := SymmetricDifference(a, b)
		assert.InDelta(t, 4.0, volume(t, got, box.LabelTrue), 1e-12)
		for _, piece := range got.TrueBoxes {
			overlap := rect(box.LabelTrue, 1, 2, 0, 2)
			assert.False(t, piece.Intersects(overlap), "piece %s lies in the shared region", piece)
		}
	})

	t.Run("contained box leaves a frame", func(t *testing.T) {
		outer := ParameterSpace{FalseBoxes: []box.Box{rect(box.LabelFalse, 0, 3, 0, 3)}}
		inner := ParameterSpace{FalseBoxes: []box.Box{rect(box.LabelFalse, 1, 2, 1, 2)}}
		got := SymmetricDifference(outer, inner)
		assert.InDelta(t, 8.0, volume(t, got, box.LabelFalse), 1e-12)
	})

	t.Run("disjoint spaces union", func(t *testing.T) {
		a := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 0, 1, 0, 1)}}
		b := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 2, 3, 0, 1)}}
		got := SymmetricDifference(a, b)
		assert.Len(t, got.TrueBoxes, 2)
	})

	t.Run("union of pieces covering a box cancels it", func(t *testing.T) {
		whole := ParameterSpace{TrueBoxes: []box.Box{rect(box.LabelTrue, 0, 1, 0, 1)}}
		parts := ParameterSpace{TrueBoxes: quadrants(box.LabelTrue)}
		got := SymmetricDifference(whole, parts)
		assert.Empty(t, got.TrueBoxes)
	})
}

func TestParameterSpace_Compact(t *testing.T) {
	s := ParameterSpace{
		TrueBoxes:  quadrants(box.LabelTrue),
		FalseBoxes: []box.Box{rect(box.LabelFalse, 1, 2, 0, 1), rect(box.LabelFalse, 3, 4, 0, 1)},
	}

	got, err := s.Compact()
	require.NoError(t, err)
	require.Len(t, got.TrueBoxes, 1)
	assert.True(t, got.TrueBoxes[0].Equal(rect(box.LabelTrue, 0, 1, 0, 1)))
	assert.Len(t, got.FalseBoxes, 2, "non-adjacent boxes stay apart")
	assert.Len(t, s.TrueBoxes, 4, "receiver unchanged")
}

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	s := ParameterSpace{
		TrueBoxes:  quadrants(box.LabelTrue)[:1],
		TruePoints: []box.Point{box.NewPoint(map[string]float64{"x": 0.25, "y": 0.25}, box.LabelTrue)},
	}
	require.NoError(t, WriteFile(path, s))

	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, got.TrueBoxes, 1)
	assert.True(t, got.TrueBoxes[0].Equal(s.TrueBoxes[0]))
	assert.Equal(t, box.LabelTrue, got.TrueBoxes[0].Label)
	assert.Len(t, got.TruePoints, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
