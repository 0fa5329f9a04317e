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
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FileTrigger fires when a file appears at a path.
//
// # Description
//
// Watches the parent directory of the path so the file need not exist
// when watching starts. An operator halts a running search with
// `touch <path>`.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type FileTrigger struct {
	path     string
	watcher  *fsnotify.Watcher
	callback func()
	logger   *slog.Logger
}

// NewFileTrigger creates a trigger for path.
//
// # Inputs
//
//   - path: File whose creation fires the trigger.
//   - callback: Invoked once per matching create or write event.
//   - logger: If nil, uses slog.Default().
//
// # Outputs
//
//   - *FileTrigger: Ready-to-start trigger.
//   - error: Non-nil if the watcher cannot be created.
func NewFileTrigger(path string, callback func(), logger *slog.Logger) (*FileTrigger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FileTrigger{
		path:     abs,
		watcher:  watcher,
		callback: callback,
		logger:   logger.With(slog.String("subsystem", "halt_file")),
	}, nil
}

// Exists reports whether the halt file is already present.
func (f *FileTrigger) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Start registers the watch. Events are delivered by Run.
func (f *FileTrigger) Start() error {
	return f.watcher.Add(filepath.Dir(f.path))
}

// Run delivers events until ctx is cancelled or the watcher is closed.
func (f *FileTrigger) Run(ctx context.Context) {
	f.logger.Debug("watching halt file", slog.String("path", f.path))
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handleEvent(event)

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("halt file watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			return
		}
	}
}

func (f *FileTrigger) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	if filepath.Clean(event.Name) != f.path {
		return
	}
	f.logger.Info("halt file detected", slog.String("path", f.path))
	if f.callback != nil {
		f.callback()
	}
}

// Stop releases the watcher. Safe to call multiple times.
func (f *FileTrigger) Stop() error {
	return f.watcher.Close()
}
