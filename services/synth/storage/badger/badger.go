// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists search runs in an embedded BadgerDB.
//
// Each run stores its metadata under run/<id> and every emitted record
// under rec/<id>/<sequence>, so a finished or halted run can be listed
// and its ParameterSpace rebuilt without re-running the search.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config holds configuration for the result database.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Useful for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil they are discarded.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a value log rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// slogAdapter adapts slog.Logger to badger.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (l *slogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *slogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// options translates cfg into badger options.
func options(cfg Config) (badger.Options, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return opts, errors.New("path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return opts, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&slogAdapter{logger: cfg.Logger.With(slog.String("component", "badger"))})
	} else {
		opts = opts.WithLogger(nil)
	}
	return opts, nil
}

// gcLoop periodically rewrites the value log until stop is closed.
type gcLoop struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func startGC(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) (*gcLoop, error) {
	if ratio < 0 || ratio > 1 {
		return nil, errors.New("gc discard ratio must be between 0 and 1")
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &gcLoop{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go g.run()
	return g, nil
}

func (g *gcLoop) run() {
	defer close(g.done)
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was worth collecting.
			if err := g.db.RunValueLogGC(g.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				g.logger.Warn("value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (g *gcLoop) close() {
	g.once.Do(func() {
		close(g.stop)
		<-g.done
	})
}
