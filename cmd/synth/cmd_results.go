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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSynth/pkg/ux"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
	storebadger "github.com/AleutianAI/AleutianSynth/services/synth/storage/badger"
)

var errNoStore = errors.New("no result store: pass --store or set results.store_path")

// newResultsCmd lists stored runs, or rebuilds the space of one run.
//
// # Examples
//
//	synth results --store runs/
//	synth results --store runs/ --run 3f2a9c01b7d4 --out space.yaml
func newResultsCmd(a *app) *cobra.Command {
	var storePath, runID, out string
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Inspect runs recorded in a result store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if storePath == "" {
				storePath = a.cfg.Results.StorePath
			}
			if storePath == "" {
				return errNoStore
			}
			cfg := storebadger.DefaultConfig(storePath)
			cfg.Logger = a.logger
			cfg.GCInterval = 0
			st, err := storebadger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open result store: %w", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			if runID == "" {
				runs, err := st.Runs(ctx)
				if err != nil {
					return err
				}
				p := ux.NewPrinter(cmd.OutOrStdout())
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					status := "incomplete"
					if r.Complete() {
						status = "complete"
					}
					rows = append(rows, []string{
						r.ID, r.Problem, r.StartedAt.Format(time.RFC3339),
						strconv.FormatUint(r.Records, 10), p.Status(r.Complete(), status),
					})
				}
				p.Table([]string{"RUN", "PROBLEM", "STARTED", "RECORDS", "STATUS"}, rows)
				return nil
			}

			ps, err := st.Space(ctx, runID)
			if err != nil {
				return err
			}
			if out != "" {
				return space.WriteFile(out, ps)
			}
			return writeSpace(cmd.OutOrStdout(), ps)
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "BadgerDB directory (default results.store_path)")
	cmd.Flags().StringVar(&runID, "run", "", "rebuild the space of this run")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the rebuilt space to this file instead of stdout")
	return cmd
}
