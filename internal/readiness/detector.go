// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package readiness detects when the embedded applet has finished initialising.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/ManuGH/nlbridge/internal/scheduler"
	"github.com/rs/zerolog"
)

// State of the detector.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateProbing       State = "probing"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// DefaultInterval is the pause between two probes.
const DefaultInterval = 250 * time.Millisecond

// ErrGaveUp is reported when a configured attempt bound is exhausted.
var ErrGaveUp = errors.New("readiness: applet never became ready")

// Options configures a Detector.
type Options struct {
	Interval time.Duration
	// MaxAttempts bounds probing; 0 probes forever.
	MaxAttempts int
	// ProbeTimeout bounds a single probe against slow drivers; 0 disables it.
	ProbeTimeout time.Duration
}

// Detector probes the applet until its global table is reachable and
// non-trivial, then flips the handle to ready exactly once.
type Detector struct {
	handle *applet.Handle
	sched  scheduler.Scheduler
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	state   State
	task    *scheduler.Task
	ctx     context.Context
	onReady []func(*applet.Accessor)
	onFail  []func(error)
}

// New creates a detector for handle.
func New(handle *applet.Handle, sched scheduler.Scheduler, opts Options) *Detector {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Detector{
		handle: handle,
		sched:  sched,
		opts:   opts,
		logger: xglog.WithComponent("readiness"),
		state:  StateUninitialized,
	}
}

// OnReady registers fn to run once, on the loop, when the applet becomes ready.
func (d *Detector) OnReady(fn func(*applet.Accessor)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onReady = append(d.onReady, fn)
}

// OnGiveUp registers fn to run when MaxAttempts is exhausted.
func (d *Detector) OnGiveUp(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onFail = append(d.onFail, fn)
}

// State returns the detector state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Start begins probing. Calling Start more than once has no effect.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateUninitialized {
		return
	}
	d.ctx = ctx
	d.state = StateProbing
	d.task = d.sched.Every(d.opts.Interval, d.probe)
	d.logger.Info().
		Str(xglog.FieldEvent, "readiness.probing").
		Dur("interval", d.opts.Interval).
		Int("max_attempts", d.opts.MaxAttempts).
		Msg("waiting for applet")
}

// Stop cancels probing without changing the state.
func (d *Detector) Stop() {
	d.mu.Lock()
	task := d.task
	d.mu.Unlock()
	task.Cancel()
}

func (d *Detector) probe() {
	d.mu.Lock()
	ctx := d.ctx
	task := d.task
	d.mu.Unlock()

	if ctx.Err() != nil {
		task.Cancel()
		return
	}

	attempt := d.handle.RecordAttempt()
	acc, err := d.tryResolve(ctx)
	if err != nil {
		d.logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "readiness.not_ready").
			Int(xglog.FieldAttempt, attempt).
			Msg("applet not ready yet")
		if d.opts.MaxAttempts > 0 && attempt >= d.opts.MaxAttempts {
			d.giveUp(task, attempt)
		}
		return
	}

	task.Cancel()
	if !d.handle.MarkReady(acc) {
		return
	}

	d.mu.Lock()
	d.state = StateReady
	callbacks := slices.Clone(d.onReady)
	d.mu.Unlock()

	metrics.RecordReadinessProbe("ready")
	metrics.SetAppletReady(true, acc.Table().Len())
	d.logger.Info().
		Str(xglog.FieldEvent, "readiness.ready").
		Int(xglog.FieldAttempt, attempt).
		Int(xglog.FieldGlobals, acc.Table().Len()).
		Msg("applet ready")

	for _, fn := range callbacks {
		fn(acc)
	}
}

// tryResolve performs one probe. Every failure is transient.
func (d *Detector) tryResolve(ctx context.Context) (*applet.Accessor, error) {
	if d.opts.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.ProbeTimeout)
		defer cancel()
	}

	chain, err := applet.Resolve(ctx, d.handle.Applet())
	if err != nil {
		metrics.RecordReadinessProbe("not_ready")
		return nil, err
	}
	table, err := chain.Globals(ctx)
	if err != nil {
		metrics.RecordReadinessProbe("not_ready")
		return nil, err
	}
	// A table of zero or one entries is a stale or half-built program.
	if table.Len() <= 1 {
		metrics.RecordReadinessProbe("degenerate")
		return nil, fmt.Errorf("%w: global table has %d entries", applet.ErrNotReady, table.Len())
	}
	return applet.NewAccessor(chain, table), nil
}

func (d *Detector) giveUp(task *scheduler.Task, attempts int) {
	task.Cancel()
	err := fmt.Errorf("%w after %d attempts", ErrGaveUp, attempts)

	d.mu.Lock()
	d.state = StateFailed
	callbacks := slices.Clone(d.onFail)
	d.mu.Unlock()

	d.logger.Error().
		Err(err).
		Str(xglog.FieldEvent, "readiness.gave_up").
		Msg("applet readiness bound exhausted")
	for _, fn := range callbacks {
		fn(err)
	}
}
