// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the bridge over HTTP: probes, metrics, status, the
// manual export trigger and the drained applet log.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/nlbridge/internal/api/middleware"
	"github.com/ManuGH/nlbridge/internal/export"
	"github.com/ManuGH/nlbridge/internal/health"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/logexport"
	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/ManuGH/nlbridge/internal/readiness"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Caller runs fn on the scheduler loop and waits for it. *scheduler.Loop
// implements it.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// ExportCoordinator is the part of *export.Coordinator the API needs.
type ExportCoordinator interface {
	Status() export.Status
	LastPayload() (string, time.Time, bool)
	Trigger(trigger string) error
}

// LogCoordinator is the part of *logexport.Coordinator the API needs.
type LogCoordinator interface {
	Status() logexport.Status
	Hub() *logexport.Hub
}

// AppletStatus is satisfied by *applet.Handle.
type AppletStatus interface {
	Ready() bool
	Attempts() int
}

// ReadinessState is satisfied by *readiness.Detector.
type ReadinessState interface {
	State() readiness.State
}

// LedgerSize reports the number of processed runs.
type LedgerSize interface {
	Len(ctx context.Context) (int, error)
}

// Deps wires the server to the running bridge.
type Deps struct {
	Version   string
	Health    *health.Manager
	Loop      Caller
	Applet    AppletStatus
	Readiness ReadinessState
	Export    ExportCoordinator
	Logs      LogCoordinator
	Ledger    LedgerSize

	// TriggerRateLimit is the number of manual triggers per client and minute.
	TriggerRateLimit int
	// LogHistory caps GET /api/v1/logs.
	LogHistory int
	// TracingService enables otelhttp spans when set.
	TracingService string
}

// Server serves the HTTP surface.
type Server struct {
	deps   Deps
	logger zerolog.Logger
	router chi.Router

	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.TriggerRateLimit <= 0 {
		deps.TriggerRateLimit = 30
	}
	if deps.LogHistory <= 0 {
		deps.LogHistory = logexport.DefaultRingSize
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(deps.Version)
	}
	s := &Server{
		deps:    deps,
		logger:  xglog.WithComponent("api"),
		closing: make(chan struct{}),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// CloseStreams ends every open log stream. http.Server.Shutdown does not
// wait for hijacked connections, so the daemon calls this first.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		TracingService:        s.deps.TracingService,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.With(middleware.RateLimit(middleware.RateLimitConfig{
			RequestLimit: s.deps.TriggerRateLimit,
			WindowSize:   time.Minute,
			OnLimited:    func(*http.Request) { metrics.RecordExportTrigger("rate_limited") },
		})).Post("/export", s.handleTrigger)
		r.Get("/export/latest", s.handleLatest)
		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stream", s.handleLogStream)
	})
	return r
}
