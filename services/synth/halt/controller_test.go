// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package halt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halted(c *Controller) func() bool {
	return func() bool {
		_, ok := c.Halted()
		return ok
	}
}

func TestController_Halt(t *testing.T) {
	c, err := NewController(context.Background(), Config{}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Halted()
	assert.False(t, ok)
	assert.NoError(t, c.Context().Err())

	c.Halt(Reason{Kind: KindUser, Message: "interrupt"})
	c.Halt(Reason{Kind: KindStall})

	r, ok := c.Halted()
	require.True(t, ok)
	assert.Equal(t, KindUser, r.Kind)
	assert.Equal(t, "user: interrupt", r.String())
	assert.False(t, r.Timestamp.IsZero())
	assert.ErrorIs(t, context.Cause(c.Context()), ErrHalted)
}

func TestController_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c, err := NewController(parent, Config{}, nil)
	require.NoError(t, err)
	defer c.Close()

	cancel()
	require.Eventually(t, halted(c), time.Second, 5*time.Millisecond)
	r, _ := c.Halted()
	assert.Equal(t, KindParent, r.Kind)
}

func TestController_Stall(t *testing.T) {
	c, err := NewController(context.Background(), Config{StallTimeout: 40 * time.Millisecond}, nil)
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, halted(c), 2*time.Second, 5*time.Millisecond)
	r, _ := c.Halted()
	assert.Equal(t, KindStall, r.Kind)
}

func TestReportProgress(t *testing.T) {
	c, err := NewController(context.Background(), Config{}, nil)
	require.NoError(t, err)
	defer c.Close()

	before := c.LastProgress()
	time.Sleep(2 * time.Millisecond)
	child, cancel := context.WithCancel(c.Context())
	defer cancel()
	ReportProgress(child)
	assert.True(t, c.LastProgress().After(before))

	// A context without a controller is ignored.
	ReportProgress(context.Background())
}

func TestController_HaltFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HALT")
	c, err := NewController(context.Background(), Config{HaltFile: path}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Halted()
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	require.Eventually(t, halted(c), 2*time.Second, 5*time.Millisecond)
	r, _ := c.Halted()
	assert.Equal(t, KindFile, r.Kind)
}

func TestController_HaltFileAlreadyPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HALT")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	c, err := NewController(context.Background(), Config{HaltFile: path}, nil)
	require.NoError(t, err)
	defer c.Close()

	r, ok := c.Halted()
	require.True(t, ok)
	assert.Equal(t, KindFile, r.Kind)
}

func TestConfig_Validate(t *testing.T) {
	_, err := NewController(nil, Config{}, nil) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = NewController(context.Background(), Config{StallTimeout: -time.Second}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := Config{StallTimeout: 8 * time.Millisecond}
	cfg.ApplyDefaults()
	assert.Equal(t, 10*time.Millisecond, cfg.CheckInterval)

	assert.Equal(t, "stall", KindStall.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestController_CloseIdempotent(t *testing.T) {
	c, err := NewController(context.Background(), Config{HaltFile: filepath.Join(t.TempDir(), "HALT")}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Error(t, c.Context().Err())
}
