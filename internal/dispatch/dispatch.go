// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package dispatch routes retrieved export payloads to the exporter that
// understands their shape.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/nlbridge/internal/ledger"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/metrics"
	"github.com/ManuGH/nlbridge/internal/netlogo"
	"github.com/ManuGH/nlbridge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoExporter is returned when a payload's shape has no configured exporter.
var ErrNoExporter = errors.New("dispatch: no exporter for payload kind")

// SingleExporter receives single-record payloads.
type SingleExporter interface {
	ExportData(ctx context.Context, data map[string]any) error
}

// MultiRunExporter receives the runs of a multi-run payload and log actions.
type MultiRunExporter interface {
	ExportRun(ctx context.Context, run netlogo.Run) error
	OpenTable(ctx context.Context) error
	LogAction(ctx context.Context, line string) error
}

// TextDisplay shows a payload verbatim.
type TextDisplay interface {
	ShowText(ctx context.Context, text string) error
}

// Options selects the collaborators. Any of them may be nil.
type Options struct {
	Single   SingleExporter
	MultiRun MultiRunExporter
	// Text, when set, receives every payload as literal text and
	// classification is skipped.
	Text TextDisplay
}

// Result reports what a dispatch did.
type Result struct {
	Kind     Kind `json:"kind,omitempty"`
	Exported int  `json:"exported"`
	Skipped  int  `json:"skipped"`
	// TableOpened is true when OpenTable was called.
	TableOpened bool `json:"table_opened"`
}

// Dispatcher classifies payloads and forwards them.
type Dispatcher struct {
	opts   Options
	logger zerolog.Logger
	tracer trace.Tracer
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	return &Dispatcher{
		opts:   opts,
		logger: xglog.WithComponent("dispatch"),
		tracer: telemetry.Tracer("nlbridge.dispatch"),
	}
}

// Dispatch classifies raw and forwards it. seen records exported run
// timestamps and is consulted so a run is never exported twice.
func (d *Dispatcher) Dispatch(ctx context.Context, raw string, seen ledger.TimestampSet) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.payload")
	defer span.End()

	res, err := d.dispatch(ctx, raw, seen)
	span.SetAttributes(telemetry.PayloadAttributes(string(res.Kind), len(raw), res.Exported, res.Skipped)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordPayload(string(res.Kind))
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, raw string, seen ledger.TimestampSet) (Result, error) {
	logger := xglog.WithContext(ctx, d.logger)

	if d.opts.Text != nil {
		res := Result{Kind: KindText}
		if err := d.opts.Text.ShowText(ctx, raw); err != nil {
			return res, fmt.Errorf("dispatch: show text: %w", err)
		}
		logger.Debug().
			Str(xglog.FieldEvent, "dispatch.text").
			Int("bytes", len(raw)).
			Msg("payload shown as text")
		return res, nil
	}

	p := Classify(raw)
	switch p.Kind {
	case KindSingle:
		return d.single(ctx, logger, p)
	case KindMultiRun:
		return d.multiRun(ctx, logger, p, seen)
	default:
		logger.Info().
			Str(xglog.FieldEvent, "dispatch.unrecognized").
			Str("reason", p.Reason).
			Int("bytes", len(raw)).
			Msg("payload not recognized, nothing exported")
		return Result{Kind: KindUnrecognized}, nil
	}
}

func (d *Dispatcher) single(ctx context.Context, logger zerolog.Logger, p Payload) (Result, error) {
	res := Result{Kind: KindSingle}
	if d.opts.Single == nil {
		return res, fmt.Errorf("%w: %s", ErrNoExporter, p.Kind)
	}
	if err := d.opts.Single.ExportData(ctx, p.Object); err != nil {
		return res, fmt.Errorf("dispatch: export single record: %w", err)
	}
	res.Exported = 1
	logger.Info().
		Str(xglog.FieldEvent, "dispatch.single").
		Interface("collection", p.Object[keyCollectionName]).
		Msg("single record exported")
	return res, nil
}

func (d *Dispatcher) multiRun(ctx context.Context, logger zerolog.Logger, p Payload, seen ledger.TimestampSet) (Result, error) {
	res := Result{Kind: KindMultiRun}
	if d.opts.MultiRun == nil {
		return res, fmt.Errorf("%w: %s", ErrNoExporter, p.Kind)
	}
	if p.DecodeErr != nil {
		metrics.RecordRun("failed")
		logger.Warn().
			Err(p.DecodeErr).
			Str(xglog.FieldEvent, "dispatch.document_failed").
			Msg("multi-run document malformed, nothing exported")
		return res, fmt.Errorf("dispatch: %w", p.DecodeErr)
	}
	if seen == nil {
		seen = ledger.NewMemory()
	}

	var errs []error
	for _, ts := range netlogo.TimeStamps(p.Document) {
		done, err := seen.Has(ctx, ts)
		if err != nil {
			return res, fmt.Errorf("dispatch: ledger lookup %q: %w", ts, err)
		}
		if done {
			res.Skipped++
			metrics.RecordRun("duplicate")
			continue
		}

		idx, _ := netlogo.RunHavingTimeStamp(p.Document, ts)
		run, err := netlogo.ImportRun(p.Document, idx)
		if err == nil {
			err = d.opts.MultiRun.ExportRun(ctx, run)
		}
		if err != nil {
			metrics.RecordRun("failed")
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "dispatch.run_failed").
				Str(xglog.FieldRunTS, ts).
				Msg("run export failed")
			errs = append(errs, fmt.Errorf("run %s: %w", ts, err))
			continue
		}
		if err := seen.Add(ctx, ts); err != nil {
			return res, fmt.Errorf("dispatch: ledger add %q: %w", ts, err)
		}
		res.Exported++
		metrics.RecordRun("exported")
	}

	if res.Exported > 0 {
		if err := d.opts.MultiRun.OpenTable(ctx); err != nil {
			errs = append(errs, fmt.Errorf("open table: %w", err))
		} else {
			res.TableOpened = true
		}
	}

	logger.Info().
		Str(xglog.FieldEvent, "dispatch.multi_run").
		Int("runs", len(p.Document.Runs)).
		Int("exported", res.Exported).
		Int("skipped", res.Skipped).
		Msg("multi-run payload dispatched")

	if len(errs) > 0 {
		return res, fmt.Errorf("dispatch: %w", errors.Join(errs...))
	}
	return res, nil
}
