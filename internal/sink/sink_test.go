// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/nlbridge/internal/netlogo"
	"github.com/ManuGH/nlbridge/internal/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleRun = netlogo.Run{
	TimeStamp:     "2026-01-01T10:00:00Z",
	PerRunLabels:  []string{"start time", "k (N/m)"},
	PerRunValues:  []any{"2026-01-01T10:00:00Z", 2.0},
	PerTickLabels: []string{"t", "x"},
	PerTickValues: [][]any{{0.0, 1.0}, {0.1, 0.99}},
}

func TestFile_WritesDocuments(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	f.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, f.ExportData(ctx, map[string]any{"collection_name": "my coll/1", "rows": []any{1.0}}))
	singles, err := os.ReadDir(filepath.Join(dir, singlesDir))
	require.NoError(t, err)
	require.Len(t, singles, 1)
	assert.True(t, strings.HasPrefix(singles[0].Name(), "my_coll_1-"))

	require.NoError(t, f.ExportRun(ctx, sampleRun))
	require.NoError(t, f.OpenTable(ctx))

	raw, err := os.ReadFile(filepath.Join(dir, tableFile))
	require.NoError(t, err)
	var table tableDoc
	require.NoError(t, json.Unmarshal(raw, &table))
	assert.Equal(t, []string{"2026-01-01T10_00_00Z.json"}, table.Runs)

	require.NoError(t, f.LogAction(ctx, "setup"))
	require.NoError(t, f.LogAction(ctx, "go"))
	actions, err := os.ReadFile(filepath.Join(dir, actionsLog))
	require.NoError(t, err)
	assert.Equal(t, "setup\ngo\n", string(actions))

	require.NoError(t, f.ShowText(ctx, "raw payload"))
	inline, err := os.ReadFile(filepath.Join(dir, inlineFile))
	require.NoError(t, err)
	assert.Equal(t, "raw payload", string(inline))
}

func TestSQLite_StoresRunsAndTicks(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "runs.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.ExportRun(ctx, sampleRun))
	require.NoError(t, s.ExportRun(ctx, sampleRun))
	require.NoError(t, s.OpenTable(ctx))
	require.NoError(t, s.LogAction(ctx, "setup"))
	require.NoError(t, s.ExportData(ctx, map[string]any{"collection_name": "c1"}))

	n, err := s.RunCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var ticks int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks`).Scan(&ticks))
	assert.Equal(t, 2, ticks)

	var collection string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT collection FROM singles`).Scan(&collection))
	assert.Equal(t, "c1", collection)
}

type fakeChannel struct {
	msgs   []amqp.Publishing
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQP_PublishesTypedMessages(t *testing.T) {
	ch := &fakeChannel{}
	a := &AMQP{ch: ch, exchange: "nlbridge", now: time.Now}
	ctx := context.Background()

	require.NoError(t, a.ExportData(ctx, map[string]any{"collection_name": "c1"}))
	require.NoError(t, a.ExportRun(ctx, sampleRun))
	require.NoError(t, a.OpenTable(ctx))
	require.NoError(t, a.LogAction(ctx, "go"))

	require.Len(t, ch.msgs, 4)
	types := []string{ch.msgs[0].Type, ch.msgs[1].Type, ch.msgs[2].Type, ch.msgs[3].Type}
	assert.Equal(t, []string{MsgSingle, MsgRun, MsgTableOpen, MsgAction}, types)
	assert.Equal(t, "application/json", ch.msgs[1].ContentType)

	var run map[string]any
	require.NoError(t, json.Unmarshal(ch.msgs[1].Body, &run))
	assert.Equal(t, sampleRun.TimeStamp, run["time_stamp"])

	require.NoError(t, a.Close())
	assert.True(t, ch.closed)
}

func TestAMQP_PublishError(t *testing.T) {
	a := &AMQP{ch: &fakeChannel{err: errors.New("channel closed")}, exchange: "x", now: time.Now}
	err := a.LogAction(context.Background(), "go")
	assert.ErrorContains(t, err, "channel closed")
}

func TestFanout_ForwardsToCapableMembers(t *testing.T) {
	ctx := context.Background()
	a, b := &testutil.Recorder{}, &testutil.Recorder{}
	f := NewFanout(a, b, "not an exporter")

	require.NoError(t, f.ExportData(ctx, map[string]any{"collection_name": "c"}))
	require.NoError(t, f.ExportRun(ctx, sampleRun))
	require.NoError(t, f.OpenTable(ctx))
	require.NoError(t, f.LogAction(ctx, "go"))
	require.NoError(t, f.Close())

	for _, r := range []*testutil.Recorder{a, b} {
		assert.Len(t, r.Singles, 1)
		assert.Len(t, r.Runs, 1)
		assert.Equal(t, 1, r.TableOpens)
		assert.Equal(t, []string{"go"}, r.Actions)
	}
}

func TestFanout_JoinsErrors(t *testing.T) {
	bad := &testutil.Recorder{RunErr: errors.New("disk full")}
	good := &testutil.Recorder{}
	f := NewFanout(bad, good)

	err := f.ExportRun(context.Background(), sampleRun)
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, good.Runs, 1)
}

func TestFanout_RetryOnlyReachesFailedMembers(t *testing.T) {
	ctx := context.Background()
	bad := &testutil.Recorder{RunErr: errors.New("disk full")}
	good := &testutil.Recorder{}
	f := NewFanout(good, bad)

	require.Error(t, f.ExportRun(ctx, sampleRun))
	bad.RunErr = nil
	require.NoError(t, f.ExportRun(ctx, sampleRun))

	assert.Len(t, good.Runs, 1, "a member that took the run is not sent it twice")
	assert.Len(t, bad.Runs, 1)

	require.NoError(t, f.ExportRun(ctx, sampleRun))
	assert.Len(t, good.Runs, 2, "bookkeeping ends once every member succeeded")
}
