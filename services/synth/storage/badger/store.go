// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianSynth/services/synth/handler"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// ErrRunNotFound is returned when no run is stored under an ID.
var ErrRunNotFound = errors.New("run not found")

const (
	runPrefix    = "run/"
	recordPrefix = "rec/"

	// flushEvery bounds the records buffered per write batch.
	flushEvery = 256
)

// RunMeta describes one stored search run.
type RunMeta struct {
	ID         string    `json:"id"`
	Problem    string    `json:"problem"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Records    uint64    `json:"records"`
}

// Complete reports whether the run's handler was closed.
func (m RunMeta) Complete() bool { return !m.FinishedAt.IsZero() }

// Store keeps search runs and their records.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	gc     *gcLoop
	logger *slog.Logger
}

// Open opens the store described by cfg.
//
// Description:
//
//	Opens BadgerDB at cfg.Path, or in memory, and starts value log GC
//	when cfg.GCInterval is positive on a persistent store.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close.
//	error - Non-nil if the path is invalid or the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger.With(slog.String("component", "result_store"))}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		gc, err := startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, s.logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.gc = gc
	}
	return s, nil
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.close()
	}
	return s.db.Close()
}

func runKey(id string) []byte { return []byte(runPrefix + id) }

func recordKey(id string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%016x", recordPrefix, id, seq))
}

// PutRun stores or replaces run metadata.
func (s *Store) PutRun(ctx context.Context, meta RunMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(meta.ID), data)
	})
}

// Run returns the metadata of one run.
func (s *Store) Run(ctx context.Context, id string) (RunMeta, error) {
	if err := ctx.Err(); err != nil {
		return RunMeta{}, err
	}
	var meta RunMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &meta) })
	})
	return meta, err
}

// Runs lists every stored run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]RunMeta, error) {
	var out []RunMeta
	err := s.scan(ctx, []byte(runPrefix), func(v []byte) error {
		var m RunMeta
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, err
}

// Records returns the records of one run in emission order.
func (s *Store) Records(ctx context.Context, id string) ([]handler.Record, error) {
	var out []handler.Record
	err := s.scan(ctx, []byte(recordPrefix+id+"/"), func(v []byte) error {
		var r handler.Record
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// Space rebuilds the ParameterSpace of one run from its records.
func (s *Store) Space(ctx context.Context, id string) (space.ParameterSpace, error) {
	if _, err := s.Run(ctx, id); err != nil {
		return space.ParameterSpace{}, err
	}
	recs, err := s.Records(ctx, id)
	if err != nil {
		return space.ParameterSpace{}, err
	}
	var ps space.ParameterSpace
	for _, r := range recs {
		if err := handler.Apply(&ps, r); err != nil {
			return ps, err
		}
	}
	return ps, nil
}

func (s *Store) scan(ctx context.Context, prefix []byte, fn func(v []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// Handler
// -----------------------------------------------------------------------------

// RunHandler records one run into a Store.
//
// Records are buffered in a write batch and flushed every few hundred
// records and on Close.
type RunHandler struct {
	store *Store
	meta  RunMeta
	batch *badger.WriteBatch
	seq   uint64
}

// Handler returns a handler that stores the run id of problem.
func (s *Store) Handler(id, problem string) *RunHandler {
	return &RunHandler{store: s, meta: RunMeta{ID: id, Problem: problem}}
}

func (h *RunHandler) Open(ctx context.Context) error {
	h.meta.StartedAt = time.Now().UTC()
	if err := h.store.PutRun(ctx, h.meta); err != nil {
		return err
	}
	h.batch = h.store.db.NewWriteBatch()
	return nil
}

func (h *RunHandler) Process(_ context.Context, r handler.Record) error {
	if h.batch == nil {
		return handler.ErrNotOpen
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := h.batch.Set(recordKey(h.meta.ID, h.seq), data); err != nil {
		return err
	}
	h.seq++
	if h.seq%flushEvery == 0 {
		return h.flush()
	}
	return nil
}

func (h *RunHandler) flush() error {
	if err := h.batch.Flush(); err != nil {
		return err
	}
	h.batch = h.store.db.NewWriteBatch()
	return nil
}

// Close flushes pending records and marks the run finished. The context
// is not consulted so a cancelled run still records its results.
func (h *RunHandler) Close(ctx context.Context) error {
	if h.batch == nil {
		return nil
	}
	err := h.batch.Flush()
	h.batch = nil
	h.meta.FinishedAt = time.Now().UTC()
	h.meta.Records = h.seq
	return errors.Join(err, h.store.PutRun(context.WithoutCancel(ctx), h.meta))
}
