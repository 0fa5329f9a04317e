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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSynth/pkg/ux"
	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/halt"
	"github.com/AleutianAI/AleutianSynth/services/synth/handler"
	"github.com/AleutianAI/AleutianSynth/services/synth/model"
	"github.com/AleutianAI/AleutianSynth/services/synth/search"
	"github.com/AleutianAI/AleutianSynth/services/synth/space"
	storebadger "github.com/AleutianAI/AleutianSynth/services/synth/storage/badger"
	"github.com/AleutianAI/AleutianSynth/services/synth/telemetry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type searchFlags struct {
	problem     string
	out         string
	store       string
	jsonl       string
	metricsAddr string
	workers     int
	tolerance   float64
	solver      string
}

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// newSearchCmd runs one box search.
//
// # Description
//
// Loads the problem file, starts telemetry and the halt controller, and
// runs the search. Records go to the JSONL file and the result store
// when configured. The final space is written to --out, or summarized
// on stdout.
//
// # Examples
//
//	synth search --problem testdata/sir.yaml
//	synth search --problem testdata/sir.yaml --workers 8 --out space.yaml
//	synth search --problem testdata/sir.yaml --store runs/ --metrics-addr :9464
//
// # Limitations
//
//   - SIGINT, SIGTERM, the halt file and the stall detector all stop the
//     run between boxes. The partial space is still written.
func newSearchCmd(a *app) *cobra.Command {
	f := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Synthesize the parameter space of a problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearchCommand(cmd, a, f)
		},
	}
	cmd.Flags().StringVarP(&f.problem, "problem", "p", "", "problem file (YAML)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the final space to this file")
	cmd.Flags().StringVar(&f.store, "store", "", "record the run in this BadgerDB directory")
	cmd.Flags().StringVar(&f.jsonl, "jsonl", "", "append records to this JSONL file")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "override search.number_of_processes")
	cmd.Flags().Float64Var(&f.tolerance, "tolerance", 0, "override search.tolerance")
	cmd.Flags().StringVar(&f.solver, "solver", "", "override search.solver")
	_ = cmd.MarkFlagRequired("problem")
	return cmd
}

// applyFlags overlays the flags that were set onto the loaded config.
func (f *searchFlags) applyFlags(cmd *cobra.Command, a *app) error {
	cfg := &a.cfg
	if f.out != "" {
		cfg.Results.OutPath = f.out
	}
	if f.store != "" {
		cfg.Results.StorePath = f.store
	}
	if f.jsonl != "" {
		cfg.Results.JSONLPath = f.jsonl
	}
	if cmd.Flags().Changed("workers") {
		cfg.Search.NumberOfProcesses = f.workers
	}
	if cmd.Flags().Changed("tolerance") {
		cfg.Search.Tolerance = f.tolerance
	}
	if f.solver != "" {
		cfg.Search.Solver = f.solver
	}
	return cfg.Validate()
}

func runSearchCommand(cmd *cobra.Command, a *app, f *searchFlags) error {
	if err := f.applyFlags(cmd, a); err != nil {
		return err
	}
	cfg := a.cfg
	logger := a.logger

	problem, err := model.LoadProblem(f.problem)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	ctrl, err := halt.NewController(ctx, cfg.Halt.ToHaltConfig(), logger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	runID := search.NewRunID()
	sink, closeSink, err := openSinks(cfg.Results.StorePath, cfg.Results.JSONLPath, runID, problem.Name(), logger)
	if err != nil {
		return err
	}
	var res search.Result
	defer func() { closeSink(res.Done) }()

	s, err := search.New(problem, cfg.Search.ToSearchConfig(), search.Options{
		Handler: sink,
		Logger:  logger,
		RunID:   runID,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctrl.Context())
	var srv *http.Server
	if f.metricsAddr != "" {
		ln, err := net.Listen("tcp", f.metricsAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", f.metricsAddr, err)
		}
		srv = newMetricsServer()
		logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.WithoutCancel(gctx))
		}
		var err error
		res, err = s.Run(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if reason, ok := ctrl.Halted(); ok {
		logger.Warn("search halted", slog.String("reason", reason.String()))
	}
	if cfg.Results.OutPath != "" {
		if err := space.WriteFile(cfg.Results.OutPath, res.Space); err != nil {
			return err
		}
	}
	return printSummary(cmd.OutOrStdout(), res, problem)
}

// closeGrace bounds how long the store waits for a collector that
// outlived the search's wait_timeout.
var closeGrace = 10 * time.Second

// openSinks builds the record handler from the configured sinks.
//
// The returned close function releases the store once done is closed,
// which is when the collector has closed the handler. A nil done means
// the collector never ran. If the collector is still running after
// closeGrace the store is left open rather than closed under it.
func openSinks(storePath, jsonlPath, runID, problem string, logger *slog.Logger) (handler.Handler, func(done <-chan struct{}), error) {
	var sinks handler.Combined
	closeFn := func(<-chan struct{}) {}
	if jsonlPath != "" {
		sinks = append(sinks, handler.NewJSONL(jsonlPath))
	}
	if storePath != "" {
		cfg := storebadger.DefaultConfig(storePath)
		cfg.Logger = logger
		st, err := storebadger.Open(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open result store: %w", err)
		}
		sinks = append(sinks, st.Handler(runID, problem))
		closeFn = func(done <-chan struct{}) {
			if !waitForCollector(done, closeGrace) {
				logger.Error("result collector still running, leaving result store open",
					slog.Duration("grace", closeGrace))
				return
			}
			if err := st.Close(); err != nil {
				logger.Warn("closing result store failed", slog.String("error", err.Error()))
			}
		}
	}
	if len(sinks) == 0 {
		return handler.Noop{}, closeFn, nil
	}
	return sinks, closeFn, nil
}

// waitForCollector reports whether done closed within grace.
func waitForCollector(done <-chan struct{}, grace time.Duration) bool {
	if done == nil {
		return true
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// newMetricsServer serves the OpenTelemetry Prometheus exporter when it
// is active, and the default registry otherwise.
func newMetricsServer() *http.Server {
	h := telemetry.MetricsHandler()
	if h == nil {
		h = promhttp.Handler()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	return &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// printSummary reports the run: one row per label, then the counters.
func printSummary(w io.Writer, res search.Result, problem model.Problem) error {
	var params []string
	for _, p := range problem.Parameters() {
		params = append(params, p.Name)
	}
	opts := box.VolumeOptions{Parameters: params}

	p := ux.NewPrinter(w)
	p.Title("run "+res.RunID, res.Duration.Round(time.Millisecond).String())
	var rows [][]string
	for _, l := range []box.Label{box.LabelTrue, box.LabelFalse, box.LabelDropped, box.LabelUnknown} {
		v, err := res.Space.Volume(l, opts)
		if err != nil {
			return err
		}
		rows = append(rows, []string{
			string(l),
			strconv.Itoa(len(res.Space.Boxes(l))),
			strconv.FormatFloat(v, 'g', -1, 64),
		})
	}
	p.Table([]string{"LABEL", "BOXES", "VOLUME"}, rows)
	p.Counts(
		ux.Count{Name: "splits", Value: res.Stats.Splits},
		ux.Count{Name: "oracle_calls", Value: res.Stats.OracleCalls},
		ux.Count{Name: "cache_hits", Value: res.Stats.CacheHits},
	)
	if res.Halted {
		p.Warning("halted before the queue emptied")
	}
	if res.HandlerErrors > 0 {
		p.Warning(fmt.Sprintf("%d handler errors", res.HandlerErrors))
	}
	return nil
}
