// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package netlogo reads multi-run documents produced by the NetLogo
// data-export module and splits them into per-run tables.
package netlogo

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// StartTimeLabel is the run variable that carries a run's timestamp.
const StartTimeLabel = "start time"

// Descriptor describes one column.
type Descriptor struct {
	Label string `json:"label"`
	Units string `json:"units,omitempty"`
	Min   any    `json:"min,omitempty"`
	Max   any    `json:"max,omitempty"`
}

// Heading renders the column heading, with units when present.
func (d Descriptor) Heading() string {
	if d.Units == "" {
		return d.Label
	}
	return fmt.Sprintf("%s (%s)", d.Label, d.Units)
}

// RunRecord holds the values of one run, aligned with the document descriptors.
type RunRecord struct {
	RunVariables           []any   `json:"run_variables"`
	ComputationalInputs    []any   `json:"computational_inputs"`
	RepresentationalInputs []any   `json:"representational_inputs"`
	ComputationalOutputs   []any   `json:"computational_outputs"`
	TimeSeriesData         [][]any `json:"time_series_data"`
	TimeStamp              any     `json:"timeStamp,omitempty"`
}

// Document is a decoded multi-run export. Runs stay undecoded until
// ImportRun so one malformed run does not hide the others.
type Document struct {
	Description            string
	RunVariables           []Descriptor
	ComputationalInputs    []Descriptor
	RepresentationalInputs []Descriptor
	ComputationalOutputs   []Descriptor
	TimeSeriesData         []Descriptor
	Runs                   []json.RawMessage
}

type wireDocument struct {
	Description            any               `json:"description"`
	RunVariables           []Descriptor      `json:"run_variables"`
	ComputationalInputs    []Descriptor      `json:"computational_inputs"`
	RepresentationalInputs []Descriptor      `json:"representational_inputs"`
	ComputationalOutputs   []Descriptor      `json:"computational_outputs"`
	TimeSeriesData         []Descriptor      `json:"time_series_data"`
	Runs                   []json.RawMessage `json:"runs"`
}

// Run is one run flattened into per-run and per-tick columns.
type Run struct {
	TimeStamp     string
	PerRunLabels  []string
	PerRunValues  []any
	PerTickLabels []string
	PerTickValues [][]any
}

// Decode parses the descriptors of a multi-run document. A description of
// any JSON type is rendered as text.
func Decode(raw []byte) (*Document, error) {
	var w wireDocument
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("netlogo: decode document: %w", err)
	}
	doc := &Document{
		RunVariables:           w.RunVariables,
		ComputationalInputs:    w.ComputationalInputs,
		RepresentationalInputs: w.RepresentationalInputs,
		ComputationalOutputs:   w.ComputationalOutputs,
		TimeSeriesData:         w.TimeSeriesData,
		Runs:                   w.Runs,
	}
	if w.Description != nil {
		doc.Description = format(w.Description)
	}
	return doc, nil
}

// TimeStamps returns the timestamp of every run that carries one, in run order.
func TimeStamps(doc *Document) []string {
	out := make([]string, 0, len(doc.Runs))
	for i := range doc.Runs {
		if ts, ok := doc.timeStamp(i); ok {
			out = append(out, ts)
		}
	}
	return out
}

// RunHavingTimeStamp returns the index of the first run stamped ts.
func RunHavingTimeStamp(doc *Document, ts string) (int, bool) {
	for i := range doc.Runs {
		if got, ok := doc.timeStamp(i); ok && got == ts {
			return i, true
		}
	}
	return 0, false
}

// ImportRun flattens run n.
func ImportRun(doc *Document, n int) (Run, error) {
	if n < 0 || n >= len(doc.Runs) {
		return Run{}, fmt.Errorf("netlogo: run %d out of range [0,%d)", n, len(doc.Runs))
	}
	var rec RunRecord
	if err := json.Unmarshal(doc.Runs[n], &rec); err != nil {
		return Run{}, fmt.Errorf("netlogo: decode run %d: %w", n, err)
	}

	var run Run
	run.TimeStamp, _ = doc.timeStamp(n)

	groups := []struct {
		desc   []Descriptor
		values []any
	}{
		{doc.RunVariables, rec.RunVariables},
		{doc.ComputationalInputs, rec.ComputationalInputs},
		{doc.RepresentationalInputs, rec.RepresentationalInputs},
		{doc.ComputationalOutputs, rec.ComputationalOutputs},
	}
	for _, g := range groups {
		for i, d := range g.desc {
			run.PerRunLabels = append(run.PerRunLabels, d.Heading())
			var v any
			if i < len(g.values) {
				v = g.values[i]
			}
			run.PerRunValues = append(run.PerRunValues, v)
		}
	}

	for _, d := range doc.TimeSeriesData {
		run.PerTickLabels = append(run.PerTickLabels, d.Heading())
	}
	run.PerTickValues = make([][]any, 0, len(rec.TimeSeriesData))
	for _, row := range rec.TimeSeriesData {
		run.PerTickValues = append(run.PerTickValues, append([]any(nil), row...))
	}
	return run, nil
}

// timeStamp reads only the fields that stamp run n, each on its own, so
// a run with malformed data columns still reports its timestamp.
func (doc *Document) timeStamp(n int) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc.Runs[n], &fields); err != nil {
		return "", false
	}
	var vars []any
	if err := json.Unmarshal(fields["run_variables"], &vars); err == nil {
		for i, d := range doc.RunVariables {
			if !strings.EqualFold(strings.TrimSpace(d.Label), StartTimeLabel) {
				continue
			}
			if i < len(vars) && vars[i] != nil {
				return format(vars[i]), true
			}
		}
	}
	var ts any
	if err := json.Unmarshal(fields["timeStamp"], &ts); err == nil && ts != nil {
		return format(ts), true
	}
	return "", false
}

func format(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
