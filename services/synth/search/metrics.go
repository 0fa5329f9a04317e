// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianSynth/services/synth/box"
	"github.com/AleutianAI/AleutianSynth/services/synth/oracle"
)

// Package-level tracer and meter for search operations.
var (
	tracer = otel.Tracer("aleutian.synth.search")
	meter  = otel.Meter("aleutian.synth.search")
)

var (
	boxesTotal     metric.Int64Counter
	splitsTotal    metric.Int64Counter
	oracleDuration metric.Float64Histogram
	oracleFailures metric.Int64Counter
	handlerErrors  metric.Int64Counter
	runDuration    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if boxesTotal, err = meter.Int64Counter(
			"synth_search_boxes_total",
			metric.WithDescription("Boxes emitted by label"),
		); err != nil {
			metricsErr = err
			return
		}
		if splitsTotal, err = meter.Int64Counter(
			"synth_search_splits_total",
			metric.WithDescription("Mixed boxes split into two children"),
		); err != nil {
			metricsErr = err
			return
		}
		if oracleDuration, err = meter.Float64Histogram(
			"synth_search_oracle_duration_seconds",
			metric.WithDescription("Duration of oracle solve calls"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if oracleFailures, err = meter.Int64Counter(
			"synth_search_oracle_failures_total",
			metric.WithDescription("Oracle calls that returned an error"),
		); err != nil {
			metricsErr = err
			return
		}
		if handlerErrors, err = meter.Int64Counter(
			"synth_search_handler_errors_total",
			metric.WithDescription("Result handler calls that returned an error"),
		); err != nil {
			metricsErr = err
			return
		}
		runDuration, err = meter.Float64Histogram(
			"synth_search_run_duration_seconds",
			metric.WithDescription("Duration of search runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

func recordBox(ctx context.Context, l box.Label) {
	if initMetrics() != nil {
		return
	}
	boxesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("label", string(l))))
}

func recordSplit(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	splitsTotal.Add(ctx, 1)
}

func recordOracle(ctx context.Context, kind oracle.QueryKind, d time.Duration, err error) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("query", string(kind)))
	oracleDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		oracleFailures.Add(ctx, 1, attrs)
	}
}

func recordHandlerError(ctx context.Context) {
	if initMetrics() != nil {
		return
	}
	handlerErrors.Add(ctx, 1)
}

func recordRun(ctx context.Context, d time.Duration, halted bool) {
	if initMetrics() != nil {
		return
	}
	runDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("halted", halted)))
}

// startRunSpan creates the span covering one search run.
func startRunSpan(ctx context.Context, problem string, workers int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Search.Run",
		trace.WithAttributes(
			attribute.String("synth.problem", problem),
			attribute.Int("synth.workers", workers),
		),
	)
}

// setRunSpanResult records the outcome on the run span.
func setRunSpanResult(span trace.Span, s StatsSnapshot, halted bool) {
	span.SetAttributes(
		attribute.Int64("synth.true_boxes", s.TrueBoxes),
		attribute.Int64("synth.false_boxes", s.FalseBoxes),
		attribute.Int64("synth.dropped_boxes", s.DroppedBoxes),
		attribute.Int64("synth.splits", s.Splits),
		attribute.Bool("synth.halted", halted),
	)
}
