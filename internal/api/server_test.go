// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	"github.com/ManuGH/nlbridge/internal/export"
	"github.com/ManuGH/nlbridge/internal/health"
	"github.com/ManuGH/nlbridge/internal/ledger"
	"github.com/ManuGH/nlbridge/internal/logexport"
	"github.com/ManuGH/nlbridge/internal/readiness"
	"github.com/ManuGH/nlbridge/internal/scheduler"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directCaller struct{ err error }

func (c directCaller) Call(_ context.Context, fn func()) error {
	if c.err != nil {
		return c.err
	}
	fn()
	return nil
}

type fakeExport struct {
	err      error
	status   export.Status
	payload  string
	at       time.Time
	triggers []string
}

func (f *fakeExport) Status() export.Status { return f.status }

func (f *fakeExport) LastPayload() (string, time.Time, bool) {
	return f.payload, f.at, !f.at.IsZero()
}

func (f *fakeExport) Trigger(trigger string) error {
	f.triggers = append(f.triggers, trigger)
	if f.err == nil {
		f.status.SessionID = "sess-1"
	}
	return f.err
}

type fakeLogs struct{ hub *logexport.Hub }

func (f fakeLogs) Status() logexport.Status { return logexport.Status{Attached: true} }
func (f fakeLogs) Hub() *logexport.Hub      { return f.hub }

type fixedReadiness readiness.State

func (r fixedReadiness) State() readiness.State { return readiness.State(r) }

func newTestServer(t *testing.T, exp *fakeExport) (*Server, *logexport.Hub) {
	t.Helper()
	hub := logexport.NewHub(8)
	srv := New(Deps{
		Version:          "test",
		Loop:             directCaller{},
		Applet:           applet.NewHandle(nil),
		Readiness:        fixedReadiness(readiness.StateProbing),
		Export:           exp,
		Logs:             fakeLogs{hub: hub},
		TriggerRateLimit: 100,
		LogHistory:       8,
	})
	t.Cleanup(srv.CloseStreams)
	return srv, hub
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.1.1.1:5000"
	h.ServeHTTP(rec, req)
	return rec
}

func TestTrigger_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"accepted", nil, http.StatusAccepted, "requested"},
		{"busy", export.ErrBusy, http.StatusConflict, "busy"},
		{"not ready", export.ErrNotReady, http.StatusServiceUnavailable, "not_ready"},
		{"rejected", fmt.Errorf("export: %w", applet.ErrCommandRejected), http.StatusBadGateway, "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &fakeExport{err: tt.err}
			srv, _ := newTestServer(t, exp)

			rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/export")
			require.Equal(t, tt.code, rec.Code)

			var body TriggerResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, []string{export.TriggerManual}, exp.triggers)
			if tt.err == nil {
				assert.Equal(t, "sess-1", body.SessionID)
			}
		})
	}
}

func TestTrigger_LoopUnavailable(t *testing.T) {
	exp := &fakeExport{}
	srv := New(Deps{Loop: directCaller{err: context.Canceled}, Export: exp})
	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/export")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, exp.triggers)
}

func TestTrigger_ExpiredRequestNeverTriggers(t *testing.T) {
	exp := &fakeExport{}
	loop := scheduler.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	srv := New(Deps{Loop: loop, Export: exp, TriggerRateLimit: 100})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/export", nil).WithContext(ctx)
	req.RemoteAddr = "10.1.1.1:5000"
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	loop.Flush()
	assert.Empty(t, exp.triggers, "the loop must not run a trigger the client gave up on")
}

func TestTrigger_RateLimited(t *testing.T) {
	exp := &fakeExport{}
	srv := New(Deps{Loop: directCaller{}, Export: exp, TriggerRateLimit: 2})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusAccepted, do(t, srv.Handler(), http.MethodPost, "/api/v1/export").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv.Handler(), http.MethodPost, "/api/v1/export").Code)
	assert.Len(t, exp.triggers, 2)

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/v1/status").Code)
}

func TestStatus(t *testing.T) {
	exp := &fakeExport{status: export.Status{Attached: true, State: export.StateIdle, Available: true, Completed: 3}}
	seen := ledger.NewMemory()
	require.NoError(t, seen.Add(context.Background(), "2024-05-01 10:00:00"))

	hub := logexport.NewHub(4)
	srv := New(Deps{
		Version:   "1.0.0",
		Applet:    applet.NewHandle(nil),
		Readiness: fixedReadiness(readiness.StateProbing),
		Export:    exp,
		Logs:      fakeLogs{hub: hub},
		Ledger:    seen,
	})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "1.0.0", body.Version)
	assert.False(t, body.Applet.Ready)
	assert.Equal(t, "probing", body.Applet.State)
	assert.True(t, body.Export.Available)
	assert.Equal(t, 3, body.Export.Completed)
	assert.True(t, body.Logs.Attached)
	require.NotNil(t, body.LedgerLen)
	assert.Equal(t, 1, *body.LedgerLen)
}

func TestLatest(t *testing.T) {
	exp := &fakeExport{}
	srv, _ := newTestServer(t, exp)

	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/api/v1/export/latest").Code)

	exp.payload = `{"collection_name":"Springs"}`
	exp.at = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/export/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exp.payload, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "Wed, 01 May 2024 10:00:00 GMT", rec.Header().Get("Last-Modified"))
}

func TestLogs(t *testing.T) {
	srv, hub := newTestServer(t, &fakeExport{})
	for i := 1; i <= 5; i++ {
		hub.Publish(fmt.Sprintf("line %d", i), "s", time.Now())
	}

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/logs?n=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Lines []logexport.Line `json:"lines"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Lines, 2)
	assert.Equal(t, "line 4", body.Lines[0].Text)
	assert.Equal(t, "line 5", body.Lines[1].Text)

	assert.Equal(t, http.StatusBadRequest, do(t, srv.Handler(), http.MethodGet, "/api/v1/logs?n=zero").Code)
}

func TestProbes(t *testing.T) {
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewAppletChecker(applet.NewHandle(nil), nil))
	srv := New(Deps{Health: hm})

	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv.Handler(), http.MethodGet, "/readyz").Code)

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nlbridge_http_request_duration_seconds")
}

func dialStream(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/logs/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readLine(t *testing.T, conn *websocket.Conn) logexport.Line {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var l logexport.Line
	require.NoError(t, conn.ReadJSON(&l))
	return l
}

func TestLogStream(t *testing.T) {
	srv, hub := newTestServer(t, &fakeExport{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	hub.Publish("before connect", "s0", time.Now())

	conn := dialStream(t, ts, "?backlog=5")
	assert.Equal(t, "before connect", readLine(t, conn).Text)

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish("tick 1", "s1", time.Now())
	hub.Publish("tick 2", "s1", time.Now())

	assert.Equal(t, "tick 1", readLine(t, conn).Text)
	l := readLine(t, conn)
	assert.Equal(t, "tick 2", l.Text)
	assert.Equal(t, "s1", l.SessionID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestLogStream_CloseStreams(t *testing.T) {
	srv, hub := newTestServer(t, &fakeExport{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialStream(t, ts, "")
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	srv.CloseStreams()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "got %v", err)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

func TestLogStream_RejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExport{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/logs/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
