// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/nlbridge/internal/api"
	"github.com/ManuGH/nlbridge/internal/applet"
	"github.com/ManuGH/nlbridge/internal/applet/bridge"
	"github.com/ManuGH/nlbridge/internal/applet/cdp"
	"github.com/ManuGH/nlbridge/internal/applet/fake"
	"github.com/ManuGH/nlbridge/internal/config"
	"github.com/ManuGH/nlbridge/internal/dispatch"
	"github.com/ManuGH/nlbridge/internal/export"
	"github.com/ManuGH/nlbridge/internal/health"
	"github.com/ManuGH/nlbridge/internal/ledger"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/logexport"
	"github.com/ManuGH/nlbridge/internal/readiness"
	"github.com/ManuGH/nlbridge/internal/resilience"
	"github.com/ManuGH/nlbridge/internal/scheduler"
	"github.com/ManuGH/nlbridge/internal/sink"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RuntimeOptions tweaks how Build assembles the bridge.
type RuntimeOptions struct {
	// SimulateEvery steps the simulated applet at this interval when the
	// fake driver is selected. Zero leaves the simulation idle.
	SimulateEvery time.Duration
	// Applet replaces the configured driver.
	Applet applet.Applet
}

// Runtime is the assembled bridge: one scheduler loop driving the readiness
// detector and both export coordinators.
type Runtime struct {
	Loop      *scheduler.Loop
	Handle    *applet.Handle
	Detector  *readiness.Detector
	Export    *export.Coordinator
	Logs      *logexport.Coordinator
	Ledger    ledger.TimestampSet
	Sinks     *sink.Fanout
	Health    *health.Manager
	API       *api.Server
	Simulator *fake.Simulation

	simulateEvery time.Duration
	closeDriver   func()
	logger        zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	gaveUp  error
	running bool
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// driver is an opened applet together with its optional extras.
type driver struct {
	applet  applet.Applet
	close   func()
	breaker func() resilience.State
	sim     *fake.Simulation
}

func openDriver(ctx context.Context, cfg config.AppletConfig) (driver, error) {
	switch cfg.Driver {
	case "", config.DriverFake:
		sim := fake.NewSimulation()
		return driver{applet: sim, sim: sim}, nil
	case config.DriverBridge:
		c, err := bridge.New(cfg.BridgeURL, bridge.Options{
			Timeout:          cfg.Timeout,
			CommandRate:      rate.Limit(cfg.CommandRate),
			CommandBurst:     cfg.CommandBurst,
			BreakerThreshold: cfg.BreakerThreshold,
			BreakerReset:     cfg.BreakerReset,
		})
		if err != nil {
			return driver{}, err
		}
		return driver{applet: c, breaker: c.Breaker().State}, nil
	case config.DriverCDP:
		d, err := cdp.Open(ctx, cdp.Options{
			RemoteURL: cfg.CDPURL,
			PageURL:   cfg.PageURL,
			ElementID: cfg.ElementID,
		})
		if err != nil {
			return driver{}, err
		}
		return driver{applet: d, close: d.Close}, nil
	default:
		return driver{}, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// openSinks builds the exporter fanout. The file sink is returned separately
// because it also serves as the inline text display.
func openSinks(cfg config.SinksConfig) (*sink.Fanout, *sink.File, error) {
	var members []any
	var file *sink.File
	closeAll := func() { _ = sink.NewFanout(members...).Close() }

	if cfg.Dir != "" {
		f, err := sink.NewFile(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		file = f
		members = append(members, f)
	}
	if cfg.SQLite != "" {
		s, err := sink.OpenSQLite(cfg.SQLite)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		members = append(members, s)
	}
	if cfg.AMQPURL != "" {
		a, err := sink.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		members = append(members, a)
	}
	return sink.NewFanout(members...), file, nil
}

// Build opens every collaborator named by cfg. On error, anything already
// opened is closed again.
func Build(ctx context.Context, cfg config.AppConfig, opts RuntimeOptions) (*Runtime, error) {
	logger := xglog.WithComponent("runtime")

	var drv driver
	if opts.Applet != nil {
		drv = driver{applet: opts.Applet}
		if sim, ok := opts.Applet.(*fake.Simulation); ok {
			drv.sim = sim
		}
	} else {
		var err error
		if drv, err = openDriver(ctx, cfg.Applet); err != nil {
			return nil, fmt.Errorf("open applet driver: %w", err)
		}
	}
	closeDriver := func() {
		if drv.close != nil {
			drv.close()
		}
	}

	seen, err := ledger.Open(ctx, ledger.Config{
		Backend:   cfg.Ledger.Backend,
		Path:      cfg.Ledger.Path,
		RedisAddr: cfg.Ledger.RedisAddr,
		RedisDB:   cfg.Ledger.RedisDB,
		Namespace: cfg.Ledger.Namespace,
	})
	if err != nil {
		closeDriver()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	fan, file, err := openSinks(cfg.Sinks)
	if err != nil {
		_ = seen.Close()
		closeDriver()
		return nil, fmt.Errorf("open sinks: %w", err)
	}

	dopts := dispatch.Options{Single: fan, MultiRun: fan}
	if cfg.Export.InlineText && file != nil {
		dopts.Text = file
	}

	loop := scheduler.New()
	handle := applet.NewHandle(drv.applet)
	r := &Runtime{
		Loop:   loop,
		Handle: handle,
		Detector: readiness.New(handle, loop, readiness.Options{
			Interval:     cfg.Poll.Readiness,
			MaxAttempts:  cfg.Poll.MaxReadinessAttempts,
			ProbeTimeout: cfg.Poll.ProbeTimeout,
		}),
		Export: export.New(loop, dispatch.New(dopts), seen, export.Options{
			PollInterval:       cfg.Poll.Data,
			CompletionInterval: cfg.Poll.Completion,
			AutoExport:         cfg.Export.AutoExport,
			MaxWaitPolls:       cfg.Poll.MaxWaitPolls,
		}),
		Ledger:        seen,
		Sinks:         fan,
		Simulator:     drv.sim,
		simulateEvery: opts.SimulateEvery,
		closeDriver:   closeDriver,
		logger:        logger,
		done:          make(chan struct{}),
	}
	r.Logs = logexport.New(loop, newLogView(), fan, logexport.Options{
		PollInterval:  cfg.Poll.Log,
		DrainInterval: cfg.Poll.LogDrain,
		MaxWaitPolls:  cfg.Poll.MaxWaitPolls,
		RingSize:      cfg.API.LogHistory,
	})

	r.Detector.OnReady(func(acc *applet.Accessor) {
		runCtx := r.context()
		r.Export.Attach(runCtx, acc)
		r.Logs.Attach(runCtx, acc)
	})
	r.Detector.OnGiveUp(func(err error) {
		r.mu.Lock()
		r.gaveUp = err
		r.mu.Unlock()
	})

	r.Health = health.NewManager(cfg.Version)
	r.Health.RegisterChecker(health.NewAppletChecker(handle, r.GaveUp))
	if drv.breaker != nil {
		r.Health.RegisterChecker(health.NewBreakerChecker("applet_bridge", drv.breaker))
	}
	if p, ok := seen.(interface{ Ping(context.Context) error }); ok {
		r.Health.RegisterChecker(health.NewPingChecker("ledger", p.Ping))
	}
	if cfg.DataDir != "" {
		r.Health.RegisterChecker(health.NewDirChecker("data_dir", cfg.DataDir))
	}
	if file != nil {
		r.Health.RegisterChecker(health.NewDirChecker("sink_dir", file.Dir()))
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.LogService
	}
	r.API = api.New(api.Deps{
		Version:          cfg.Version,
		Health:           r.Health,
		Loop:             loop,
		Applet:           handle,
		Readiness:        r.Detector,
		Export:           r.Export,
		Logs:             r.Logs,
		Ledger:           seen,
		TriggerRateLimit: cfg.API.TriggerRateLimit,
		LogHistory:       cfg.API.LogHistory,
		TracingService:   tracing,
	})

	logger.Info().
		Str(xglog.FieldEvent, "runtime.built").
		Str("driver", cfg.Applet.Driver).
		Str("ledger", cfg.Ledger.Backend).
		Int("sinks", fan.Len()).
		Bool("auto_export", cfg.Export.AutoExport).
		Bool("inline_text", dopts.Text != nil).
		Msg("bridge assembled")
	return r, nil
}

// GaveUp returns the readiness failure, if probing was abandoned.
func (r *Runtime) GaveUp() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gaveUp
}

func (r *Runtime) context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Run starts probing and drives the loop until ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runtime already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()
	defer close(r.done)

	r.Detector.Start(ctx)
	var step *scheduler.Task
	if r.Simulator != nil && r.simulateEvery > 0 {
		step = r.Loop.Every(r.simulateEvery, func() { r.Simulator.Step(r.Loop.Now()) })
	}

	err := r.Loop.Run(ctx)

	step.Cancel()
	r.Detector.Stop()
	r.Export.Stop()
	r.Logs.Stop()
	r.logger.Info().Str(xglog.FieldEvent, "runtime.stopped").Msg("scheduler loop stopped")
	return err
}

// ApplyConfig applies the settings that can change without a restart.
func (r *Runtime) ApplyConfig(cfg config.AppConfig) {
	r.Export.SetAutoExport(cfg.Export.AutoExport)
}

// Close waits for Run to return, then releases the sinks, the ledger and the
// driver. It is registered as a shutdown hook and is safe to call again.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		select {
		case <-r.done:
		case <-ctx.Done():
			return fmt.Errorf("runtime did not stop: %w", ctx.Err())
		}
	}
	r.closeOnce.Do(func() {
		var errs []error
		if err := r.Sinks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sinks: %w", err))
		}
		if err := r.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
		r.closeDriver()
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
