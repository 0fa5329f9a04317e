// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command synth synthesizes parameter regions for compartmental models.
//
// Usage:
//
//	synth search --problem testdata/sir.yaml --out space.yaml
//	synth search --problem testdata/sir.yaml --store runs/ --metrics-addr :9464
//	synth intersect a.yaml b.yaml
//	synth symdiff a.yaml b.yaml
//	synth compact space.yaml
//	synth results --store runs/ [--run <id>]
//
// Settings come from --config (YAML or JSON), then SYNTH_* environment
// variables, then flags.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSynth/services/synth/config"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Tests build a fresh tree per case.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "synth",
		Short:        "Parameter synthesis by box splitting",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (YAML or JSON)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newSearchCmd(a),
		newIntersectCmd(a),
		newSymdiffCmd(a),
		newCompactCmd(a),
		newResultsCmd(a),
	)
	return root
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg
	a.logger = newLogger(stderr, cfg.Logging)
	slog.SetDefault(a.logger)
	return nil
}

// newLogger picks a text handler for terminals and JSON otherwise,
// unless the format is set explicitly.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	format := cfg.Format
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
