// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package netlogo

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoRuns = `{
  "description": "spring model",
  "run_variables": [{"label": "start time"}, {"label": "run"}],
  "computational_inputs": [{"label": "k", "units": "N/m"}],
  "representational_inputs": [],
  "computational_outputs": [{"label": "period", "units": "s"}],
  "time_series_data": [{"label": "t", "units": "s"}, {"label": "x"}],
  "runs": [
    {"run_variables": ["2026-01-01T10:00:00Z", 1], "computational_inputs": [2], "representational_inputs": [], "computational_outputs": [4.44],
     "time_series_data": [[0, 1], [0.1, 0.99]]},
    {"run_variables": ["2026-01-01T10:05:00Z", 2], "computational_inputs": [3], "representational_inputs": [], "computational_outputs": [3.63],
     "time_series_data": [[0, 1]]},
    {"run_variables": [null, 3], "computational_inputs": [4], "computational_outputs": [3.14], "time_series_data": []}
  ]
}`

func TestTimeStamps_SkipsUnstampedRuns(t *testing.T) {
	doc, err := Decode([]byte(twoRuns))
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-01-01T10:00:00Z", "2026-01-01T10:05:00Z"}, TimeStamps(doc))

	n, ok := RunHavingTimeStamp(doc, "2026-01-01T10:05:00Z")
	require.True(t, ok)
	assert.Equal(t, 1, n)

	_, ok = RunHavingTimeStamp(doc, "never")
	assert.False(t, ok)
}

func TestImportRun_FlattensColumns(t *testing.T) {
	doc, err := Decode([]byte(twoRuns))
	require.NoError(t, err)

	run, err := ImportRun(doc, 0)
	require.NoError(t, err)

	want := Run{
		TimeStamp:     "2026-01-01T10:00:00Z",
		PerRunLabels:  []string{"start time", "run", "k (N/m)", "period (s)"},
		PerRunValues:  []any{"2026-01-01T10:00:00Z", 1.0, 2.0, 4.44},
		PerTickLabels: []string{"t (s)", "x"},
		PerTickValues: [][]any{{0.0, 1.0}, {0.1, 0.99}},
	}
	if diff := cmp.Diff(want, run); diff != "" {
		t.Errorf("ImportRun mismatch (-want +got):\n%s", diff)
	}
}

func TestImportRun_MissingValuesAreNil(t *testing.T) {
	doc := &Document{
		ComputationalInputs: []Descriptor{{Label: "a"}, {Label: "b"}},
		Runs:                []json.RawMessage{json.RawMessage(`{"computational_inputs": [1]}`)},
	}
	run, err := ImportRun(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, nil}, run.PerRunValues)
	assert.Empty(t, run.PerTickValues)
}

func TestImportRun_OutOfRange(t *testing.T) {
	_, err := ImportRun(&Document{}, 0)
	assert.Error(t, err)
}

func TestTimeStamp_FallsBackToField(t *testing.T) {
	doc, err := Decode([]byte(`{"description":"x","runs":[{"timeStamp": 1700000000000}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"1700000000000"}, TimeStamps(doc))
}

func TestDecode_MalformedRunStaysIsolated(t *testing.T) {
	doc, err := Decode([]byte(`{
	  "description": 42,
	  "run_variables": [{"label": "start time"}],
	  "time_series_data": [{"label": "t"}],
	  "runs": [
	    {"run_variables": ["t1"], "time_series_data": [[0]]},
	    {"run_variables": ["t2"], "time_series_data": [{"t": 0}]}
	  ]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "42", doc.Description)
	assert.Equal(t, []string{"t1", "t2"}, TimeStamps(doc))

	run, err := ImportRun(doc, 0)
	require.NoError(t, err)
	assert.Equal(t, "t1", run.TimeStamp)

	_, err = ImportRun(doc, 1)
	assert.ErrorContains(t, err, "decode run 1")
}

func TestDecode_RejectsNonArrayRuns(t *testing.T) {
	_, err := Decode([]byte(`{"description": "d", "runs": "nope"}`))
	assert.Error(t, err)
}
