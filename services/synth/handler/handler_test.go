// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/interval"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
)

func trueBox(t *testing.T) box.Box {
	t.Helper()
	b := box.MustNew(map[string]interval.Interval{"x": interval.Must(interval.New(0, 1))})
	b, err := b.WithLabel(box.LabelTrue)
	require.NoError(t, err)
	return b
}

// recorder remembers the order of calls it sees.
type recorder struct {
	calls []string
	err   error
}

func (r *recorder) Open(context.Context) error { r.calls = append(r.calls, "open"); return r.err }
func (r *recorder) Process(_ context.Context, rec Record) error {
	r.calls = append(r.calls, "process:"+string(rec.Kind))
	return r.err
}
func (r *recorder) Close(context.Context) error { r.calls = append(r.calls, "close"); return r.err }

func TestRecord_Label(t *testing.T) {
	b := trueBox(t)
	assert.Equal(t, box.LabelTrue, BoxRecord("r", 0, b).Label())
	p := box.NewPoint(map[string]float64{"x": 0.5}, box.LabelFalse)
	assert.Equal(t, box.LabelFalse, PointRecord("r", 1, p).Label())
	assert.Equal(t, box.LabelUnknown, Record{}.Label())
}

func TestApply(t *testing.T) {
	var s space.ParameterSpace
	require.NoError(t, Apply(&s, BoxRecord("r", 0, trueBox(t))))
	require.NoError(t, Apply(&s, PointRecord("r", 0, box.NewPoint(map[string]float64{"x": 0.5}, box.LabelTrue))))
	assert.Len(t, s.TrueBoxes, 1)
	assert.Len(t, s.TruePoints, 1)

	assert.ErrorIs(t, Apply(&s, Record{Kind: KindBox}), ErrMalformedRecord)
}

func TestCombined(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("boom")}
	h := Combined{a, b}
	ctx := context.Background()

	assert.Error(t, h.Open(ctx))
	assert.Error(t, h.Process(ctx, BoxRecord("r", 0, trueBox(t))))
	assert.Error(t, h.Close(ctx))

	want := []string{"open", "process:box", "close"}
	assert.Equal(t, want, a.calls, "a failing part does not hide calls from the others")
	assert.Equal(t, want, b.calls)

	assert.NoError(t, Combined{Noop{}, a}.Process(ctx, Record{Kind: KindPoint}))
}

func TestFunc(t *testing.T) {
	n := 0
	h := Func(func(context.Context, Record) error { n++; return nil })
	ctx := context.Background()
	require.NoError(t, h.Open(ctx))
	require.NoError(t, h.Process(ctx, Record{}))
	require.NoError(t, h.Close(ctx))
	assert.Equal(t, 1, n)
}

func TestJSONL_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	h := NewJSONL(path)
	ctx := context.Background()

	assert.ErrorIs(t, h.Process(ctx, Record{}), ErrNotOpen)

	require.NoError(t, h.Open(ctx))
	require.NoError(t, h.Process(ctx, BoxRecord("run-1", 2, trueBox(t))))
	require.NoError(t, h.Process(ctx, PointRecord("run-1", 3, box.NewPoint(map[string]float64{"x": 0.25}, box.LabelTrue))))
	require.NoError(t, h.Close(ctx))
	require.NoError(t, h.Close(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := ReadJSONL(f)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, KindBox, recs[0].Kind)
	require.NotNil(t, recs[0].Box)
	assert.True(t, recs[0].Box.Equal(trueBox(t)))
	assert.Equal(t, 2, recs[0].Worker)

	require.NotNil(t, recs[1].Point)
	v, _ := recs[1].Point.Value("x")
	assert.Equal(t, 0.25, v)
}

func TestCombined_CloseAfterOpenFailure(t *testing.T) {
	dir := t.TempDir()
	good := NewJSONL(filepath.Join(dir, "records.jsonl"))
	bad := NewJSONL(filepath.Join(dir, "absent", "records.jsonl"))
	h := Combined{good, bad}
	ctx := context.Background()

	require.Error(t, h.Open(ctx))
	assert.NoError(t, h.Close(ctx), "closing a part that never opened is not an error")
	assert.ErrorIs(t, good.Process(ctx, Record{}), ErrNotOpen, "the opened part was closed")
}
