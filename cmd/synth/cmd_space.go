// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSynth/services/synth/space"
)

// spaceOp combines the spaces read from the command arguments.
type spaceOp func(spaces []space.ParameterSpace) (space.ParameterSpace, error)

func newIntersectCmd(a *app) *cobra.Command {
	return newSpaceCmd(a, "intersect <a.yaml> <b.yaml>",
		"Intersect two parameter spaces label by label", 2,
		func(s []space.ParameterSpace) (space.ParameterSpace, error) {
			return space.Intersect(s[0], s[1]), nil
		})
}

func newSymdiffCmd(a *app) *cobra.Command {
	return newSpaceCmd(a, "symdiff <a.yaml> <b.yaml>",
		"Regions where two parameter spaces disagree", 2,
		func(s []space.ParameterSpace) (space.ParameterSpace, error) {
			return space.SymmetricDifference(s[0], s[1]), nil
		})
}

func newCompactCmd(a *app) *cobra.Command {
	return newSpaceCmd(a, "compact <space.yaml>",
		"Merge adjacent boxes of equal label", 1,
		func(s []space.ParameterSpace) (space.ParameterSpace, error) {
			return s[0].Compact()
		})
}

// newSpaceCmd builds a command that reads nargs space files, applies op
// and writes the result to --out or as YAML to stdout.
func newSpaceCmd(a *app, use, short string, nargs int, op spaceOp) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			spaces := make([]space.ParameterSpace, len(args))
			for i, path := range args {
				s, err := space.ReadFile(path)
				if err != nil {
					return err
				}
				spaces[i] = s
			}
			res, err := op(spaces)
			if err != nil {
				return fmt.Errorf("%s: %w", cmd.Name(), err)
			}
			a.logger.Debug("space operation done",
				slog.String("op", cmd.Name()),
				slog.Int("true_boxes", len(res.TrueBoxes)),
				slog.Int("false_boxes", len(res.FalseBoxes)))
			if out != "" {
				return space.WriteFile(out, res)
			}
			return writeSpace(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the result to this file instead of stdout")
	return cmd
}

func writeSpace(w io.Writer, s space.ParameterSpace) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode space: %w", err)
	}
	return enc.Close()
}
