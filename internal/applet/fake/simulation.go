// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fake

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
)

// Simulation is a fake applet that behaves like a model carrying the
// data-export module: every Step completes a run and emits log lines.
type Simulation struct {
	*Applet

	mu      sync.Mutex
	runs    []map[string]any
	pending []string
	step    int
}

// NewSimulation builds a simulated harmonic-motion model.
func NewSimulation() *Simulation {
	a := New(
		"SPRING-CONSTANT",
		"MASS",
		applet.GlobalModuleAvailable,
		applet.GlobalDataAvailable,
		applet.GlobalDataReady,
		applet.GlobalModelData,
		applet.GlobalLogDataAvailable,
		applet.GlobalLogDataReady,
		applet.GlobalExportedLogData,
	)
	a.Set("SPRING-CONSTANT", 2.0)
	a.Set("MASS", 1.0)
	a.Set(applet.GlobalModuleAvailable, true)
	a.Set(applet.GlobalDataAvailable, false)
	a.Set(applet.GlobalDataReady, false)
	a.Set(applet.GlobalLogDataAvailable, false)
	a.Set(applet.GlobalLogDataReady, false)
	a.Set(applet.GlobalExportedLogData, applet.Slice{})

	s := &Simulation{Applet: a}

	// This module version predates the "export-data" entry point.
	a.Reject(applet.CmdExportData)
	a.OnCommand(applet.CmdMakeModelData, s.makeModelData)
	a.OnCommand(applet.CmdExportLogData, s.exportLogData)
	a.OnCommand(applet.CmdClearLogDataReady, func(a *Applet) error {
		a.Set(applet.GlobalLogDataReady, false)
		return nil
	})
	return s
}

// Step finishes one run started at now and queues its log lines.
func (s *Simulation) Step(now time.Time) {
	s.mu.Lock()
	s.step++
	n := s.step
	k, m := 2.0, 1.0
	omega := math.Sqrt(k / m)
	rows := make([][]any, 0, 10)
	for tick := 0; tick < 10; tick++ {
		t := float64(tick) / 10
		rows = append(rows, []any{t, math.Cos(omega * t), -omega * math.Sin(omega*t)})
	}
	s.runs = append(s.runs, map[string]any{
		"run_variables":           []any{now.UTC().Format(time.RFC3339Nano), n},
		"computational_inputs":    []any{k, m},
		"representational_inputs": []any{},
		"computational_outputs":   []any{omega},
		"time_series_data":        rows,
	})
	s.pending = append(s.pending,
		fmt.Sprintf("run %d started", n),
		fmt.Sprintf("run %d stopped", n),
	)
	s.mu.Unlock()

	s.Set(applet.GlobalDataAvailable, true)
	s.Set(applet.GlobalLogDataAvailable, true)
}

func (s *Simulation) makeModelData(a *Applet) error {
	s.mu.Lock()
	doc := map[string]any{
		"description": "Harmonic motion (simulated)",
		"run_variables": []any{
			map[string]any{"label": "start time"},
			map[string]any{"label": "run number"},
		},
		"computational_inputs": []any{
			map[string]any{"label": "spring constant", "units": "N/m"},
			map[string]any{"label": "mass", "units": "kg"},
		},
		"representational_inputs": []any{},
		"computational_outputs": []any{
			map[string]any{"label": "angular frequency", "units": "rad/s"},
		},
		"time_series_data": []any{
			map[string]any{"label": "time", "units": "s"},
			map[string]any{"label": "position", "units": "m"},
			map[string]any{"label": "velocity", "units": "m/s"},
		},
		"runs": append([]map[string]any(nil), s.runs...),
	}
	s.mu.Unlock()

	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	a.Set(applet.GlobalModelData, string(b))
	a.Set(applet.GlobalDataAvailable, false)
	a.Set(applet.GlobalDataReady, true)
	return nil
}

func (s *Simulation) exportLogData(a *Applet) error {
	s.mu.Lock()
	lines := make(applet.Slice, 0, len(s.pending))
	for _, l := range s.pending {
		lines = append(lines, l)
	}
	s.pending = nil
	s.mu.Unlock()

	a.Set(applet.GlobalExportedLogData, lines)
	a.Set(applet.GlobalLogDataAvailable, false)
	a.Set(applet.GlobalLogDataReady, true)
	return nil
}
