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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotOpen is returned when processing before Open or after Close.
var ErrNotOpen = errors.New("handler is not open")

// JSONL appends one JSON object per record to a file.
type JSONL struct {
	path string
	f    *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

// NewJSONL returns a handler writing to path. The file is truncated on Open.
func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

func (j *JSONL) Open(context.Context) error {
	f, err := os.Create(j.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", j.path, err)
	}
	j.f = f
	j.w = bufio.NewWriter(f)
	j.enc = json.NewEncoder(j.w)
	return nil
}

func (j *JSONL) Process(_ context.Context, r Record) error {
	if j.enc == nil {
		return ErrNotOpen
	}
	return j.enc.Encode(r)
}

func (j *JSONL) Close(context.Context) error {
	if j.f == nil {
		return nil
	}
	flushErr := j.w.Flush()
	closeErr := j.f.Close()
	j.f, j.w, j.enc = nil, nil, nil
	return errors.Join(flushErr, closeErr)
}

// ReadJSONL decodes every record from r.
func ReadJSONL(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
