// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics exposes Prometheus collectors for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readinessProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlbridge_readiness_probes_total",
		Help: "Applet readiness probes by outcome",
	}, []string{"outcome"}) // outcome=ready|not_ready|degenerate

	appletReady = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nlbridge_applet_ready",
		Help: "Whether the applet passed readiness detection (1) or not (0)",
	})

	appletGlobals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nlbridge_applet_globals",
		Help: "Number of observer globals declared by the running simulation",
	})

	appletCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlbridge_applet_commands_total",
		Help: "Commands sent to the applet by command and outcome",
	}, []string{"command", "outcome"}) // outcome=accepted|rejected
)

// RecordReadinessProbe counts one readiness probe.
func RecordReadinessProbe(outcome string) {
	readinessProbes.WithLabelValues(outcome).Inc()
}

// SetAppletReady records applet readiness and the size of its global table.
func SetAppletReady(ready bool, globals int) {
	if ready {
		appletReady.Set(1)
	} else {
		appletReady.Set(0)
	}
	appletGlobals.Set(float64(globals))
}

// RecordCommand counts a command sent to the applet.
func RecordCommand(command string, accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	appletCommands.WithLabelValues(command, outcome).Inc()
}
