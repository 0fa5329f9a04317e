// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package halt

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the halt layer.
//
// Thread Safety: Safe for concurrent use (Prometheus metrics are thread-safe).
type Metrics struct {
	// HaltTotal counts halts by kind.
	HaltTotal *prometheus.CounterVec

	// StallDetectedTotal counts stall detections.
	StallDetectedTotal prometheus.Counter

	// ProgressReportsTotal counts progress reports.
	ProgressReportsTotal prometheus.Counter
}

var (
	metricsOnce    sync.Once
	defaultMetrics *Metrics
)

// DefaultMetrics returns the process-wide halt metrics, registering them
// with the default registerer on first use.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = &Metrics{
			HaltTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "synth",
					Subsystem: "halt",
					Name:      "total",
					Help:      "Total halted runs by kind",
				},
				[]string{"kind"},
			),
			StallDetectedTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "synth",
					Subsystem: "halt",
					Name:      "stall_detected_total",
					Help:      "Total runs halted for lack of progress",
				},
			),
			ProgressReportsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "synth",
					Subsystem: "halt",
					Name:      "progress_reports_total",
					Help:      "Total progress reports received",
				},
			),
		}
	})
	return defaultMetrics
}
