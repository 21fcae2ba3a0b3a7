// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package export

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	"github.com/ManuGH/nlbridge/internal/applet/fake"
	"github.com/ManuGH/nlbridge/internal/dispatch"
	"github.com/ManuGH/nlbridge/internal/ledger"
	"github.com/ManuGH/nlbridge/internal/readiness"
	"github.com/ManuGH/nlbridge/internal/scheduler"
	"github.com/ManuGH/nlbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	applet *fake.Applet
	loop   *scheduler.Manual
	rec    *testutil.Recorder
	coord  *Coordinator
}

func newHarness(t *testing.T, opts Options, names ...string) *harness {
	t.Helper()
	if len(names) == 0 {
		names = []string{
			"SPEED",
			applet.GlobalDGDataReady,
			applet.GlobalDGExported,
			applet.GlobalDGOutput,
		}
	}
	a := fake.New(names...)
	rec := &testutil.Recorder{}
	loop := scheduler.NewManual(epoch)
	c := New(loop, dispatch.New(dispatch.Options{Single: rec, MultiRun: rec}), ledger.NewMemory(), opts)

	ctx := context.Background()
	chain, err := applet.Resolve(ctx, a)
	require.NoError(t, err)
	table, err := chain.Globals(ctx)
	require.NoError(t, err)
	c.Attach(ctx, applet.NewAccessor(chain, table))

	return &harness{applet: a, loop: loop, rec: rec, coord: c}
}

func TestTrigger_BeforeAttach(t *testing.T) {
	c := New(scheduler.NewManual(epoch), dispatch.New(dispatch.Options{}), ledger.NewMemory(), Options{})
	assert.ErrorIs(t, c.Trigger(TriggerManual), ErrNotReady)
	assert.False(t, c.Status().Attached)
}

func TestDataReady_PrefersDGGlobal(t *testing.T) {
	h := newHarness(t, Options{}, applet.GlobalDGDataReady, applet.GlobalDataAvailable)

	h.applet.Set(applet.GlobalDataAvailable, true)
	h.applet.Set(applet.GlobalDGDataReady, false)
	assert.False(t, h.coord.DataReady(), "a known DG flag shadows the module flag")

	h.applet.Set(applet.GlobalDGDataReady, nil)
	assert.True(t, h.coord.DataReady(), "unknown DG flag falls back to the module flag")
}

func TestIdlePoll_SetsAvailability(t *testing.T) {
	h := newHarness(t, Options{})

	h.loop.Advance(DefaultPollInterval)
	assert.False(t, h.coord.Available())

	h.applet.Set(applet.GlobalDGDataReady, true)
	h.loop.Advance(DefaultPollInterval)
	assert.True(t, h.coord.Available())
	assert.Equal(t, StateIdle, h.coord.State(), "manual mode must not export on its own")
	assert.Empty(t, h.applet.Commands())
}

func TestCompletion_SingleRetrievalOnFirstTrue(t *testing.T) {
	h := newHarness(t, Options{})
	h.applet.Set(applet.GlobalDGOutput, `{"collection_name": "c1", "rows": [1]}`)
	h.applet.Set(applet.GlobalDGExported, false)

	require.NoError(t, h.coord.Trigger(TriggerManual))
	assert.Equal(t, StateDataReady, h.coord.State())

	for i := 0; i < 2; i++ {
		h.loop.Advance(DefaultCompletionInterval)
		assert.Empty(t, h.rec.Singles, "poll %d saw false", i+1)
	}

	h.applet.Set(applet.GlobalDGExported, true)
	h.loop.Advance(DefaultCompletionInterval)
	require.Len(t, h.rec.Singles, 1)

	h.loop.Advance(time.Second)
	assert.Len(t, h.rec.Singles, 1)
	assert.Equal(t, StateIdle, h.coord.State())
	assert.Equal(t, 1, h.loop.Pending(), "only the idle poll remains armed")

	raw, _, ok := h.coord.LastPayload()
	require.True(t, ok)
	assert.Contains(t, raw, "c1")
}

func TestAutoExport_TriggersOnFirstTrueObservation(t *testing.T) {
	h := newHarness(t, Options{AutoExport: true})
	h.applet.Set(applet.GlobalDGOutput, `{"collection_name": "c1"}`)
	h.applet.Set(applet.GlobalDGExported, true)
	h.applet.OnCommand(applet.CmdExportData, func(a *fake.Applet) error {
		a.Set(applet.GlobalDGDataReady, false)
		return nil
	})

	for _, ready := range []bool{false, false} {
		h.applet.Set(applet.GlobalDGDataReady, ready)
		h.loop.Advance(DefaultPollInterval)
		assert.Zero(t, h.applet.CommandCount(applet.CmdExportData))
	}

	h.applet.Set(applet.GlobalDGDataReady, true)
	h.loop.Advance(DefaultPollInterval)
	assert.Equal(t, 1, h.applet.CommandCount(applet.CmdExportData))

	h.loop.Advance(5 * time.Second)
	assert.Equal(t, 1, h.applet.CommandCount(applet.CmdExportData))
	assert.Len(t, h.rec.Singles, 1)
}

func TestTrigger_BusyWhileInFlight(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.coord.Trigger(TriggerManual))
	assert.ErrorIs(t, h.coord.Trigger(TriggerManual), ErrBusy)
	assert.Equal(t, 1, h.applet.CommandCount(applet.CmdExportData))
}

func TestTrigger_FallbackIssuedOnce(t *testing.T) {
	h := newHarness(t, Options{}, applet.GlobalDataReady, applet.GlobalModelData)
	h.applet.Reject(applet.CmdExportData)
	h.applet.OnCommand(applet.CmdMakeModelData, func(a *fake.Applet) error {
		a.Set(applet.GlobalModelData, `{"collection_name": "fallback"}`)
		a.Set(applet.GlobalDataReady, true)
		return nil
	})

	require.NoError(t, h.coord.Trigger(TriggerManual))
	h.loop.Advance(DefaultCompletionInterval)

	assert.Equal(t, []string{applet.CmdExportData, applet.CmdMakeModelData}, h.applet.Commands())
	require.Len(t, h.rec.Singles, 1)
	assert.Equal(t, "fallback", h.rec.Singles[0]["collection_name"])
}

func TestTrigger_BothCommandsRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.applet.Reject(applet.CmdExportData)
	h.applet.Reject(applet.CmdMakeModelData)

	err := h.coord.Trigger(TriggerManual)
	require.Error(t, err)
	assert.ErrorIs(t, err, applet.ErrCommandRejected)
	assert.Equal(t, StateIdle, h.coord.State())
	assert.Equal(t, 1, h.applet.CommandCount(applet.CmdMakeModelData))

	h.loop.Advance(time.Second)
	assert.Equal(t, 1, h.applet.CommandCount(applet.CmdMakeModelData), "fallback must not loop")
	assert.Equal(t, 1, h.coord.Status().Rejected)

	// The next trigger tries again from the top.
	_ = h.coord.Trigger(TriggerManual)
	assert.Equal(t, 2, h.applet.CommandCount(applet.CmdExportData))
	assert.Equal(t, 2, h.applet.CommandCount(applet.CmdMakeModelData))
}

func TestCompletion_BoundedWait(t *testing.T) {
	h := newHarness(t, Options{MaxWaitPolls: 4})
	h.applet.Set(applet.GlobalDGExported, false)

	require.NoError(t, h.coord.Trigger(TriggerManual))
	h.loop.Advance(3 * DefaultCompletionInterval)
	assert.Equal(t, StateDataReady, h.coord.State())

	h.loop.Advance(DefaultCompletionInterval)
	assert.Equal(t, StateIdle, h.coord.State())
	st := h.coord.Status()
	assert.Equal(t, 1, st.TimedOut)
	assert.Contains(t, st.LastError, "completion not signalled")
	assert.Empty(t, h.rec.Singles)
}

func TestCompletion_OutputFallsBackToModelData(t *testing.T) {
	h := newHarness(t, Options{},
		applet.GlobalDGExported, applet.GlobalDGOutput, applet.GlobalDataReady, applet.GlobalModelData)
	h.applet.Set(applet.GlobalDGExported, true)
	h.applet.Set(applet.GlobalDGOutput, "")
	h.applet.Set(applet.GlobalModelData, `{"collection_name": "model"}`)

	require.NoError(t, h.coord.Trigger(TriggerManual))
	h.loop.Advance(DefaultCompletionInterval)

	require.Len(t, h.rec.Singles, 1)
	assert.Equal(t, "model", h.rec.Singles[0]["collection_name"])
}

func TestEndToEnd_ReadinessThenManualExport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := fake.New("SPEED", "COUNT", applet.GlobalDGDataReady, applet.GlobalDGExported, applet.GlobalDGOutput)
	a.FailNext(applet.HopPanel, 2)
	a.Set(applet.GlobalDGOutput, `{"collection_name":"c1","rows":[[1,2],[3,4]]}`)
	a.Set(applet.GlobalDGExported, false)

	loop := scheduler.NewManual(epoch)
	rec := &testutil.Recorder{}
	coord := New(loop, dispatch.New(dispatch.Options{Single: rec, MultiRun: rec}), ledger.NewMemory(), Options{})

	handle := applet.NewHandle(a)
	det := readiness.New(handle, loop, readiness.Options{})
	det.OnReady(func(acc *applet.Accessor) { coord.Attach(ctx, acc) })
	det.Start(ctx)

	loop.Advance(2 * readiness.DefaultInterval)
	assert.False(t, handle.Ready())
	assert.ErrorIs(t, coord.Trigger(TriggerManual), ErrNotReady)

	loop.Advance(readiness.DefaultInterval)
	require.True(t, handle.Ready())
	assert.True(t, coord.Status().Attached)

	require.NoError(t, coord.Trigger(TriggerManual))

	loop.Advance(DefaultCompletionInterval)
	assert.Empty(t, rec.Singles)

	a.Set(applet.GlobalDGExported, true)
	loop.Advance(DefaultCompletionInterval)
	require.Len(t, rec.Singles, 1)
	assert.Equal(t, "c1", rec.Singles[0]["collection_name"])

	loop.Advance(10 * time.Second)
	assert.Len(t, rec.Singles, 1)
	assert.Equal(t, 1, coord.Status().Completed)
}
