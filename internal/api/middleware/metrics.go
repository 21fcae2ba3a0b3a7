// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Metrics records Prometheus metrics for HTTP requests, labelled by chi
// route pattern to keep cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			metrics.HTTPInFlight(1)
			defer metrics.HTTPInFlight(-1)

			sw := wrap(w)
			next.ServeHTTP(sw, r)

			metrics.ObserveHTTPRequest(r.Method, routePattern(r), strconv.Itoa(sw.statusCode), time.Since(start), sw.bytesWritten)
		})
	}
}

// routePattern returns the matched chi pattern, or "unmatched" so that
// scans of random paths do not create new series.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
