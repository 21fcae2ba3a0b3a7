// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package testutil

import (
	"context"
	"sync"

	"github.com/ManuGH/nlbridge/internal/netlogo"
)

// Recorder implements every exporter collaborator and records the calls it
// receives. Set the *Err fields to make the matching call fail.
type Recorder struct {
	mu sync.Mutex

	Singles    []map[string]any
	Runs       []netlogo.Run
	TableOpens int
	Actions    []string
	Texts      []string
	Lines      []string

	SingleErr error
	RunErr    error
	TableErr  error
}

func (r *Recorder) ExportData(_ context.Context, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SingleErr != nil {
		return r.SingleErr
	}
	r.Singles = append(r.Singles, data)
	return nil
}

func (r *Recorder) ExportRun(_ context.Context, run netlogo.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RunErr != nil {
		return r.RunErr
	}
	r.Runs = append(r.Runs, run)
	return nil
}

func (r *Recorder) OpenTable(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TableErr != nil {
		return r.TableErr
	}
	r.TableOpens++
	return nil
}

func (r *Recorder) LogAction(_ context.Context, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Actions = append(r.Actions, line)
	return nil
}

func (r *Recorder) ShowText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Texts = append(r.Texts, text)
	return nil
}

// AppendLine records a line shown in the visible log view.
func (r *Recorder) AppendLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lines = append(r.Lines, line)
}

// RunStamps returns the timestamps of the exported runs in order.
func (r *Recorder) RunStamps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Runs))
	for _, run := range r.Runs {
		out = append(out, run.TimeStamp)
	}
	return out
}
