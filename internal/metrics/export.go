// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	exportCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlbridge_export_cycles_total",
		Help: "Data export cycles by trigger and outcome",
	}, []string{"trigger", "outcome"}) // outcome=completed|rejected|timeout

	exportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nlbridge_export_duration_seconds",
		Help:    "Time from export request to payload retrieval",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	exportState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nlbridge_export_state",
		Help: "Data export coordinator state (active state=1)",
	}, []string{"state"})

	commandFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlbridge_export_command_fallbacks_total",
		Help: "Export requests that needed the fallback export command",
	})

	payloadsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlbridge_payloads_total",
		Help: "Retrieved payloads by classification",
	}, []string{"kind"}) // kind=single|multi_run|unrecognized|text

	runsExported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlbridge_runs_total",
		Help: "Multi-run payload runs by outcome",
	}, []string{"outcome"}) // outcome=exported|duplicate|failed

	logLinesDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlbridge_log_lines_drained_total",
		Help: "Log lines drained from the applet",
	})

	logDrains = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nlbridge_log_drains_total",
		Help: "Completed log drain cycles",
	})
)

var exportStates = []string{"idle", "requested", "data_ready"}

// RecordExportCycle counts a finished export cycle.
func RecordExportCycle(trigger, outcome string) {
	exportCycles.WithLabelValues(trigger, outcome).Inc()
}

// ObserveExportDuration records the latency of a completed export.
func ObserveExportDuration(d time.Duration) {
	exportDuration.Observe(d.Seconds())
}

// SetExportState records the active export coordinator state.
func SetExportState(state string) {
	for _, s := range exportStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		exportState.WithLabelValues(s).Set(v)
	}
}

// IncCommandFallback counts a fallback export command.
func IncCommandFallback() {
	commandFallbacks.Inc()
}

// RecordPayload counts a classified payload.
func RecordPayload(kind string) {
	payloadsClassified.WithLabelValues(kind).Inc()
}

// RecordRun counts one run of a multi-run payload.
func RecordRun(outcome string) {
	runsExported.WithLabelValues(outcome).Inc()
}

// RecordLogDrain counts a completed drain of n lines.
func RecordLogDrain(n int) {
	logDrains.Inc()
	logLinesDrained.Add(float64(n))
}
