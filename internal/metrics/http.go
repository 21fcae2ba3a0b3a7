// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nlbridge_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nlbridge_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nlbridge_http_response_size_bytes",
		Help:    "HTTP response sizes in bytes",
		Buckets: prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "route"})

	exportTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nlbridge_export_triggers_total",
		Help: "Manual export trigger requests by HTTP outcome",
	}, []string{"outcome"}) // outcome=accepted|busy|not_ready|rejected|rate_limited

	logSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nlbridge_log_stream_subscribers",
		Help: "Connected log stream websocket clients",
	})
)

// HTTPInFlight adjusts the in-flight request gauge by delta.
func HTTPInFlight(delta float64) {
	httpRequestsInFlight.Add(delta)
}

// ObserveHTTPRequest records one served request. route is the router
// pattern, never the raw path.
func ObserveHTTPRequest(method, route, status string, d time.Duration, bytes int) {
	httpRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	if bytes > 0 {
		httpResponseSize.WithLabelValues(method, route).Observe(float64(bytes))
	}
}

// RecordExportTrigger counts a manual trigger request.
func RecordExportTrigger(outcome string) {
	exportTriggers.WithLabelValues(outcome).Inc()
}

// SetLogSubscribers sets the websocket subscriber gauge.
func SetLogSubscribers(n int) {
	logSubscribers.Set(float64(n))
}
