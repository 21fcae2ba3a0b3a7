// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package export coordinates data exports: it watches the applet for new
// data, issues the export command and waits for the payload.
package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	"github.com/ManuGH/nlbridge/internal/dispatch"
	"github.com/ManuGH/nlbridge/internal/fsm"
	"github.com/ManuGH/nlbridge/internal/ledger"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/ManuGH/nlbridge/internal/scheduler"
	"github.com/ManuGH/nlbridge/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Poll intervals.
const (
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultCompletionInterval = 50 * time.Millisecond
)

// Trigger sources.
const (
	TriggerManual = "manual"
	TriggerAuto   = "auto"
)

var (
	// ErrBusy is returned when a trigger arrives while an export is in flight.
	ErrBusy = errors.New("export: an export is already in progress")
	// ErrNotReady is returned when a trigger arrives before the applet is ready.
	ErrNotReady = errors.New("export: applet not ready")
	// ErrExportTimeout is reported when a bounded wait for completion expires.
	ErrExportTimeout = errors.New("export: completion not signalled in time")
)

// Candidate globals, in priority order.
var (
	dataReadyCandidates  = []string{applet.GlobalDGDataReady, applet.GlobalDataAvailable}
	completionCandidates = []string{applet.GlobalDGExported, applet.GlobalDataReady}
	outputCandidates     = []string{applet.GlobalDGOutput, applet.GlobalModelData}
)

// Dispatcher receives retrieved payloads.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw string, seen ledger.TimestampSet) (dispatch.Result, error)
}

// Options configures a Coordinator.
type Options struct {
	PollInterval       time.Duration
	CompletionInterval time.Duration
	// AutoExport triggers an export as soon as new data is available.
	AutoExport bool
	// MaxWaitPolls bounds the completion wait; 0 waits forever.
	MaxWaitPolls int
}

// Session is one in-flight export.
type Session struct {
	ID        string
	Trigger   string
	StartedAt time.Time
	Polls     int

	task *scheduler.Task
	ctx  context.Context
	span trace.Span
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Attached      bool            `json:"attached"`
	State         State           `json:"state"`
	Available     bool            `json:"available"`
	AutoExport    bool            `json:"auto_export"`
	SessionID     string          `json:"session_id,omitempty"`
	Completed     int             `json:"completed"`
	Rejected      int             `json:"rejected"`
	TimedOut      int             `json:"timed_out"`
	LastPayloadAt time.Time       `json:"last_payload_at,omitempty"`
	LastResult    dispatch.Result `json:"last_result"`
	LastError     string          `json:"last_error,omitempty"`
}

// Coordinator drives the idle → requested → data_ready → idle cycle.
// Every method except Status and LastPayload must run on the scheduler loop.
type Coordinator struct {
	sched    scheduler.Scheduler
	dispatch Dispatcher
	seen     ledger.TimestampSet
	opts     Options
	machine  *fsm.Machine[State, Event]
	logger   zerolog.Logger
	tracer   trace.Tracer

	mu          sync.Mutex
	ctx         context.Context
	acc         *applet.Accessor
	idleTask    *scheduler.Task
	session     *Session
	available   bool
	lastPayload string
	status      Status
}

// New creates a coordinator. seen is the ledger shared with the dispatcher.
func New(sched scheduler.Scheduler, d Dispatcher, seen ledger.TimestampSet, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CompletionInterval <= 0 {
		opts.CompletionInterval = DefaultCompletionInterval
	}
	c := &Coordinator{
		sched:    sched,
		dispatch: d,
		seen:     seen,
		opts:     opts,
		machine:  newMachine(),
		logger:   xglog.WithComponent("export"),
		tracer:   telemetry.Tracer("nlbridge.export"),
		ctx:      context.Background(),
	}
	c.machine.Observe(func(from, to State, event Event) {
		metrics.SetExportState(string(to))
		c.logger.Debug().
			Str(xglog.FieldEvent, "export.transition").
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Str("trigger_event", string(event)).
			Msg("export state changed")
	})
	metrics.SetExportState(string(StateIdle))
	return c
}

// Attach starts the idle poll against a ready applet. It is meant to be
// registered as a readiness callback. Later calls are ignored.
func (c *Coordinator) Attach(ctx context.Context, acc *applet.Accessor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acc != nil {
		return
	}
	c.ctx = ctx
	c.acc = acc
	c.idleTask = c.sched.Every(c.opts.PollInterval, c.pollIdle)
	c.logger.Info().
		Str(xglog.FieldEvent, "export.attached").
		Bool("auto_export", c.opts.AutoExport).
		Dur("interval", c.opts.PollInterval).
		Msg("polling for exportable data")
}

// Stop cancels every poll task.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	idle := c.idleTask
	var sess *scheduler.Task
	if c.session != nil {
		sess = c.session.task
	}
	c.mu.Unlock()
	idle.Cancel()
	sess.Cancel()
}

// SetAutoExport toggles automatic export on a running coordinator.
func (c *Coordinator) SetAutoExport(on bool) {
	c.mu.Lock()
	c.opts.AutoExport = on
	c.mu.Unlock()
}

// State returns the machine state.
func (c *Coordinator) State() State { return c.machine.State() }

// Available reports whether the last idle poll saw exportable data.
func (c *Coordinator) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

// DataReady evaluates the "new data" policy: DG-DATA-READY? when the model
// declares it, else DATA-EXPORT:DATA-AVAILABLE?.
func (c *Coordinator) DataReady() bool {
	acc, ctx := c.accessor()
	if acc == nil {
		return false
	}
	v, _, ok := acc.First(ctx, dataReadyCandidates, nil)
	return ok && applet.Truthy(v)
}

// LastPayload returns the most recently retrieved raw payload.
func (c *Coordinator) LastPayload() (string, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.LastPayloadAt.IsZero() {
		return "", time.Time{}, false
	}
	return c.lastPayload, c.status.LastPayloadAt, true
}

// Status returns a snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	st.Attached = c.acc != nil
	st.State = c.machine.State()
	st.Available = c.available
	st.AutoExport = c.opts.AutoExport
	if c.session != nil {
		st.SessionID = c.session.ID
	}
	return st
}

func (c *Coordinator) accessor() (*applet.Accessor, context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acc, c.ctx
}

func (c *Coordinator) pollIdle() {
	acc, ctx := c.accessor()
	if ctx.Err() != nil {
		c.Stop()
		return
	}
	if acc == nil || c.machine.State() != StateIdle {
		return
	}

	ready := c.DataReady()
	c.mu.Lock()
	changed := c.available != ready
	c.available = ready
	auto := c.opts.AutoExport
	c.mu.Unlock()
	if changed {
		c.logger.Debug().
			Str(xglog.FieldEvent, "export.availability").
			Bool("available", ready).
			Msg("export availability changed")
	}

	if ready && auto {
		if err := c.Trigger(TriggerAuto); err != nil && !errors.Is(err, ErrBusy) {
			c.logger.Debug().Err(err).Str(xglog.FieldEvent, "export.auto_failed").Msg("automatic export not started")
		}
	}
}

// Trigger starts an export cycle. It returns ErrNotReady before Attach,
// ErrBusy while a cycle is in flight, and a command error when the applet
// rejects both export commands.
func (c *Coordinator) Trigger(trigger string) error {
	acc, ctx := c.accessor()
	if acc == nil {
		return ErrNotReady
	}
	if _, err := c.machine.Fire(EventTrigger); err != nil {
		return ErrBusy
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: c.sched.Now(),
	}
	sess.ctx, sess.span = c.tracer.Start(xglog.ContextWithSessionID(ctx, sess.ID), "export.cycle",
		trace.WithAttributes(telemetry.ExportAttributes(sess.ID, trigger)...))

	c.mu.Lock()
	c.session = sess
	c.available = false
	c.mu.Unlock()

	logger := c.logger.With().Str(xglog.FieldSessionID, sess.ID).Logger()
	logger.Info().
		Str(xglog.FieldEvent, "export.requested").
		Str("trigger", trigger).
		Msg("export requested")

	if err := c.request(sess.ctx, acc, logger); err != nil {
		c.machine.Fire(EventRejected) //nolint:errcheck
		metrics.RecordExportCycle(trigger, "rejected")
		c.finish(sess, err, func(st *Status) { st.Rejected++ })
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "export.rejected").
			Msg("applet rejected every export command, cycle abandoned")
		return err
	}

	c.machine.Fire(EventAccepted) //nolint:errcheck
	task := c.sched.Every(c.opts.CompletionInterval, c.pollCompletion)
	c.mu.Lock()
	sess.task = task
	c.mu.Unlock()
	return nil
}

// request issues the primary export command, falling back once.
func (c *Coordinator) request(ctx context.Context, acc *applet.Accessor, logger zerolog.Logger) error {
	err := acc.Execute(ctx, applet.CmdExportData)
	metrics.RecordCommand(applet.CmdExportData, err == nil)
	if err == nil {
		return nil
	}

	logger.Info().
		Err(err).
		Str(xglog.FieldEvent, "export.fallback").
		Str(xglog.FieldCommand, applet.CmdMakeModelData).
		Msg("primary export command failed, trying fallback")
	metrics.IncCommandFallback()

	fbErr := acc.Execute(ctx, applet.CmdMakeModelData)
	metrics.RecordCommand(applet.CmdMakeModelData, fbErr == nil)
	if fbErr != nil {
		return fmt.Errorf("export: %w", errors.Join(err, fbErr))
	}
	return nil
}

func (c *Coordinator) pollCompletion() {
	acc, ctx := c.accessor()
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if ctx.Err() != nil {
		sess.task.Cancel()
		return
	}

	sess.Polls++
	v, _, ok := acc.First(sess.ctx, completionCandidates, nil)
	if !ok || !applet.Truthy(v) {
		if c.opts.MaxWaitPolls > 0 && sess.Polls >= c.opts.MaxWaitPolls {
			c.timeout(sess)
		}
		return
	}

	sess.task.Cancel()
	c.complete(sess, acc)
}

func (c *Coordinator) complete(sess *Session, acc *applet.Accessor) {
	logger := c.logger.With().Str(xglog.FieldSessionID, sess.ID).Logger()

	raw := ""
	v, source, ok := acc.First(sess.ctx, outputCandidates, applet.NonEmpty)
	if ok {
		raw = applet.Text(v)
	} else {
		logger.Warn().
			Str(xglog.FieldEvent, "export.no_output").
			Msg("completion signalled but no output global holds data")
	}

	now := c.sched.Now()
	res, err := c.dispatch.Dispatch(sess.ctx, raw, c.seen)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "export.dispatch_failed").
			Msg("payload dispatch failed")
	}

	elapsed := now.Sub(sess.StartedAt)
	metrics.ObserveExportDuration(elapsed)
	metrics.RecordExportCycle(sess.Trigger, "completed")
	logger.Info().
		Str(xglog.FieldEvent, "export.completed").
		Str(xglog.FieldGlobal, source).
		Str(xglog.FieldPayload, string(res.Kind)).
		Int("polls", sess.Polls).
		Dur("elapsed", elapsed).
		Msg("export payload retrieved")

	c.machine.Fire(EventDone) //nolint:errcheck
	c.finish(sess, err, func(st *Status) {
		st.Completed++
		st.LastPayloadAt = now
		st.LastResult = res
		c.lastPayload = raw
	})
}

func (c *Coordinator) timeout(sess *Session) {
	sess.task.Cancel()
	err := fmt.Errorf("%w after %d polls", ErrExportTimeout, sess.Polls)
	metrics.RecordExportCycle(sess.Trigger, "timeout")
	c.logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "export.timeout").
		Str(xglog.FieldSessionID, sess.ID).
		Msg("export abandoned")
	c.machine.Fire(EventTimeout) //nolint:errcheck
	c.finish(sess, err, func(st *Status) { st.TimedOut++ })
}

// finish ends the session span and records its outcome.
func (c *Coordinator) finish(sess *Session, err error, update func(*Status)) {
	if err != nil {
		sess.span.RecordError(err)
		sess.span.SetStatus(codes.Error, err.Error())
	}
	sess.span.End()

	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.status)
	c.status.LastError = ""
	if err != nil {
		c.status.LastError = err.Error()
	}
	if c.session == sess {
		c.session = nil
	}
}
