// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"net/http"
	"time"

	xglog "github.com/ManuGH/nlbridge/internal/log"
)

// Logging writes one access log line per request. Probes and scrapes are
// logged at debug.
func Logging(next http.Handler) http.Handler {
	base := xglog.WithComponent("api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := wrap(w)
		next.ServeHTTP(sw, r)

		logger := xglog.WithContext(r.Context(), base)
		ev := logger.Info()
		if isProbe(r.URL.Path) {
			ev = logger.Debug()
		}
		ev.Str(xglog.FieldEvent, "api.request").
			Str("method", r.Method).
			Str(xglog.FieldPath, r.URL.Path).
			Int("status", sw.statusCode).
			Int("bytes", sw.bytesWritten).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("request served")
	})
}

func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}
