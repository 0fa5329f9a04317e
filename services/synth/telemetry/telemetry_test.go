// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()
	assert.Equal(t, "aleutian-synth", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)

	t.Setenv("OTEL_TRACES_EXPORTER", ExporterStdout)
	assert.Equal(t, ExporterStdout, DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_None(t *testing.T) {
	cfg := Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone}
	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin", MetricExporter: ExporterNone})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_Stdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{
		ServiceName:    "synth-test",
		TraceExporter:  ExporterStdout,
		MetricExporter: ExporterStdout,
		Writer:         &buf,
	}
	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit")
}

func TestInit_PrometheusHandler(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterPrometheus})
	require.NoError(t, err)
	defer shutdown(context.Background())

	h := MetricsHandler()
	require.NotNil(t, h)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LoggerWithTrace(context.Background(), logger).Info("plain")
	assert.NotContains(t, buf.String(), "trace_id")

	assert.NotNil(t, LoggerWithTrace(context.Background(), nil))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	buf.Reset()
	LoggerWithTrace(ctx, logger).Info("traced")
	assert.Contains(t, buf.String(), `"trace_id":"0102030405060708090a0b0c0d0e0f10"`)
	assert.Contains(t, buf.String(), `"span_id":"0102030405060708"`)
}

func TestRecordError(t *testing.T) {
	RecordError(nil, errors.New("ignored"))
	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "err")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()
}
