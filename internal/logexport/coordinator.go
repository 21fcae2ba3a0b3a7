// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package logexport drains the applet's log buffer for the lifetime of the
// process.
package logexport

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/ManuGH/nlbridge/internal/scheduler"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Poll intervals.
const (
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultDrainInterval = 50 * time.Millisecond
)

// LineConsumer is the visible log view.
type LineConsumer interface {
	AppendLine(line string)
}

// ActionLogger records a log line with the exporter.
type ActionLogger interface {
	LogAction(ctx context.Context, line string) error
}

// Options configures a Coordinator.
type Options struct {
	PollInterval  time.Duration
	DrainInterval time.Duration
	// MaxWaitPolls bounds the wait for LOG-DATA-READY?; 0 waits forever.
	MaxWaitPolls int
	RingSize     int
}

// Session is one pending drain.
type Session struct {
	ID        string
	StartedAt time.Time
	Polls     int

	task *scheduler.Task
}

// Status is a snapshot of the coordinator.
type Status struct {
	Attached  bool   `json:"attached"`
	Draining  bool   `json:"draining"`
	Drains    int    `json:"drains"`
	Lines     int    `json:"lines"`
	Abandoned int    `json:"abandoned"`
	SessionID string `json:"session_id,omitempty"`
}

// Coordinator polls LOG-DATA-AVAILABLE?, requests the log export, waits for
// LOG-DATA-READY?, forwards every line and clears the ready flag.
type Coordinator struct {
	sched   scheduler.Scheduler
	view    LineConsumer
	actions ActionLogger
	hub     *Hub
	opts    Options
	logger  zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	acc     *applet.Accessor
	task    *scheduler.Task
	session *Session
	status  Status
}

// New creates a coordinator. view and actions may be nil.
func New(sched scheduler.Scheduler, view LineConsumer, actions ActionLogger, opts Options) *Coordinator {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = DefaultDrainInterval
	}
	return &Coordinator{
		sched:   sched,
		view:    view,
		actions: actions,
		hub:     NewHub(opts.RingSize),
		opts:    opts,
		logger:  xglog.WithComponent("logexport"),
		ctx:     context.Background(),
	}
}

// Hub returns the line history and broadcaster.
func (c *Coordinator) Hub() *Hub { return c.hub }

// Attach starts the availability poll. Later calls are ignored.
func (c *Coordinator) Attach(ctx context.Context, acc *applet.Accessor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acc != nil {
		return
	}
	c.ctx = ctx
	c.acc = acc
	c.status.Attached = true
	c.task = c.sched.Every(c.opts.PollInterval, c.poll)
	c.logger.Info().
		Str(xglog.FieldEvent, "logexport.attached").
		Dur("interval", c.opts.PollInterval).
		Msg("polling for log data")
}

// Stop cancels every poll task.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	task := c.task
	var drain *scheduler.Task
	if c.session != nil {
		drain = c.session.task
	}
	c.mu.Unlock()
	task.Cancel()
	drain.Cancel()
}

// Status returns a snapshot.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.status
	if c.session != nil {
		st.Draining = true
		st.SessionID = c.session.ID
	}
	return st
}

func (c *Coordinator) poll() {
	c.mu.Lock()
	ctx, acc, pending := c.ctx, c.acc, c.session != nil
	c.mu.Unlock()

	if ctx.Err() != nil {
		c.Stop()
		return
	}
	if pending {
		return
	}

	v, ok := acc.ReadGlobal(ctx, applet.GlobalLogDataAvailable)
	if !ok || !applet.Truthy(v) {
		return
	}

	err := acc.Execute(ctx, applet.CmdExportLogData)
	metrics.RecordCommand(applet.CmdExportLogData, err == nil)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "logexport.request_failed").
			Str(xglog.FieldCommand, applet.CmdExportLogData).
			Msg("log export command failed, retrying on next poll")
		return
	}

	sess := &Session{ID: uuid.NewString(), StartedAt: c.sched.Now()}
	sess.task = c.sched.Every(c.opts.DrainInterval, func() { c.pollReady(sess) })
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	c.logger.Debug().
		Str(xglog.FieldEvent, "logexport.requested").
		Str(xglog.FieldSessionID, sess.ID).
		Msg("log export requested")
}

func (c *Coordinator) pollReady(sess *Session) {
	c.mu.Lock()
	ctx, acc := c.ctx, c.acc
	c.mu.Unlock()

	if ctx.Err() != nil {
		sess.task.Cancel()
		return
	}

	sess.Polls++
	v, ok := acc.ReadGlobal(ctx, applet.GlobalLogDataReady)
	if !ok || !applet.Truthy(v) {
		if c.opts.MaxWaitPolls > 0 && sess.Polls >= c.opts.MaxWaitPolls {
			sess.task.Cancel()
			c.logger.Warn().
				Str(xglog.FieldEvent, "logexport.abandoned").
				Str(xglog.FieldSessionID, sess.ID).
				Int("polls", sess.Polls).
				Msg("log data never became ready")
			c.end(sess, 0, false)
		}
		return
	}

	sess.task.Cancel()
	n := c.drain(ctx, acc, sess)

	err := acc.Execute(ctx, applet.CmdClearLogDataReady)
	metrics.RecordCommand(applet.CmdClearLogDataReady, err == nil)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "logexport.clear_failed").
			Str(xglog.FieldSessionID, sess.ID).
			Msg("could not clear log-ready flag")
	}

	metrics.RecordLogDrain(n)
	c.end(sess, n, true)
}

// drain forwards every exported line in order and returns how many it read.
func (c *Coordinator) drain(ctx context.Context, acc *applet.Accessor, sess *Session) int {
	logger := c.logger.With().Str(xglog.FieldSessionID, sess.ID).Logger()

	list, err := acc.ReadList(ctx, applet.GlobalExportedLogData)
	if err != nil {
		logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "logexport.read_failed").
			Msg("exported log data unreadable, treating as empty")
		return 0
	}

	n := 0
	for i := 0; i < list.Size(); i++ {
		item, err := list.Get(i)
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Str(xglog.FieldEvent, "logexport.item_failed").Msg("log line unreadable")
			continue
		}
		line := applet.Text(item)
		n++

		if c.view != nil {
			c.view.AppendLine(line)
		}
		if c.actions != nil {
			if err := c.actions.LogAction(ctx, line); err != nil {
				logger.Warn().Err(err).Str(xglog.FieldEvent, "logexport.action_failed").Msg("log action not recorded")
			}
		}
		c.hub.Publish(line, sess.ID, c.sched.Now())
	}

	logger.Debug().
		Str(xglog.FieldEvent, "logexport.drained").
		Int(xglog.FieldLogLines, n).
		Msg("log data drained")
	return n
}

func (c *Coordinator) end(sess *Session, lines int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.status.Drains++
		c.status.Lines += lines
	} else {
		c.status.Abandoned++
	}
	if c.session == sess {
		c.session = nil
	}
}
