// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sink provides the concrete exporters payloads are delivered to.
package sink

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ManuGH/nlbridge/internal/dispatch"
	"github.com/ManuGH/nlbridge/internal/netlogo"
)

// Fanout forwards every call to each member that implements the matching
// exporter interface. Members may implement any subset.
//
// A run that fails on some members is retried by the dispatcher. Members that
// already took it are remembered by run timestamp and not sent it again.
type Fanout struct {
	members []any

	mu        sync.Mutex
	delivered map[string]map[int]struct{}
}

// NewFanout builds a fanout over members.
func NewFanout(members ...any) *Fanout {
	return &Fanout{members: members, delivered: make(map[string]map[int]struct{})}
}

// Len returns the number of members.
func (f *Fanout) Len() int { return len(f.members) }

func (f *Fanout) ExportData(ctx context.Context, data map[string]any) error {
	var errs []error
	for _, m := range f.members {
		if s, ok := m.(dispatch.SingleExporter); ok {
			errs = append(errs, s.ExportData(ctx, data))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) ExportRun(ctx context.Context, run netlogo.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	done := f.delivered[run.TimeStamp]
	var errs []error
	for i, m := range f.members {
		s, ok := m.(dispatch.MultiRunExporter)
		if !ok {
			continue
		}
		if _, sent := done[i]; sent {
			continue
		}
		if err := s.ExportRun(ctx, run); err != nil {
			errs = append(errs, err)
			continue
		}
		if done == nil {
			done = make(map[int]struct{})
		}
		done[i] = struct{}{}
	}

	switch {
	case len(errs) == 0:
		delete(f.delivered, run.TimeStamp)
	case run.TimeStamp != "" && done != nil:
		f.delivered[run.TimeStamp] = done
	}
	return errors.Join(errs...)
}

func (f *Fanout) OpenTable(ctx context.Context) error {
	var errs []error
	for _, m := range f.members {
		if s, ok := m.(dispatch.MultiRunExporter); ok {
			errs = append(errs, s.OpenTable(ctx))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) LogAction(ctx context.Context, line string) error {
	var errs []error
	for _, m := range f.members {
		if s, ok := m.(dispatch.MultiRunExporter); ok {
			errs = append(errs, s.LogAction(ctx, line))
		}
	}
	return errors.Join(errs...)
}

// Close closes every member that is an io.Closer.
func (f *Fanout) Close() error {
	var errs []error
	for _, m := range f.members {
		if c, ok := m.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
