// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/AleutianSynth/services/synth/formula"
)

// QueryKind names the two per-box oracle questions.
type QueryKind string

const (
	// QueryTruePoint asks for a point where the query holds.
	QueryTruePoint QueryKind = "tp"

	// QueryFalsePoint asks for a point where the query fails.
	QueryFalsePoint QueryKind = "fp"
)

// DumpPath returns the debug file for one query of one iteration.
func DumpPath(dir string, kind QueryKind, iteration int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.smt2", kind, iteration))
}

// DumpSMTLIB writes the assertion stack to DumpPath(dir, kind, iteration).
//
// The file is written to a temporary name and renamed so a reader never
// sees a partial script.
func DumpSMTLIB(dir string, kind QueryKind, iteration int64, assertions []formula.Formula) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating smtlib dir: %w", err)
	}
	path := DumpPath(dir, kind, iteration)
	tmp, err := os.CreateTemp(dir, ".smt2-*")
	if err != nil {
		return fmt.Errorf("creating smtlib file: %w", err)
	}
	if err := formula.WriteSMTLIB(tmp, assertions); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
