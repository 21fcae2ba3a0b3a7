// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/nlbridge/internal/applet"
	"github.com/ManuGH/nlbridge/internal/applet/fake"
	"github.com/ManuGH/nlbridge/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relay serves the bridge protocol on top of a fake applet.
func relay(t *testing.T, a *fake.Applet) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	resolve := func(w http.ResponseWriter, r *http.Request) (*applet.Chain, bool) {
		chain, err := applet.Resolve(r.Context(), a)
		if err != nil {
			var ce *applet.ChainError
			hop := ""
			if errors.As(err, &ce) {
				hop = string(ce.Hop)
			}
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error(), "hop": hop})
			return nil, false
		}
		return chain, true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /applet/status", func(w http.ResponseWriter, r *http.Request) {
		_, err := applet.Resolve(r.Context(), a)
		var ce *applet.ChainError
		if errors.As(err, &ce) {
			writeJSON(w, http.StatusOK, map[string]string{"missing": string(ce.Hop)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"missing": ""})
	})
	mux.HandleFunc("GET /applet/globals", func(w http.ResponseWriter, r *http.Request) {
		chain, ok := resolve(w, r)
		if !ok {
			return
		}
		raw, _ := chain.Program.Globals(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"globals": raw})
	})
	mux.HandleFunc("GET /applet/observer/{index}", func(w http.ResponseWriter, r *http.Request) {
		chain, ok := resolve(w, r)
		if !ok {
			return
		}
		i, _ := strconv.Atoi(r.PathValue("index"))
		v, err := chain.Observer.GetVariable(r.Context(), i)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"value": v})
	})
	mux.HandleFunc("POST /applet/command", func(w http.ResponseWriter, r *http.Request) {
		chain, ok := resolve(w, r)
		if !ok {
			return
		}
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := chain.Panel.CommandLater(r.Context(), req.Command); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ResolvesAndReadsGlobals(t *testing.T) {
	a := fake.New("SPEED", applet.GlobalDGOutput, applet.GlobalExportedLogData)
	a.Set("SPEED", 2.5)
	a.Set(applet.GlobalDGOutput, `{"collection_name":"c"}`)
	a.Set(applet.GlobalExportedLogData, applet.Slice{"a", "b"})
	srv := relay(t, a)

	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	chain, err := applet.Resolve(ctx, c)
	require.NoError(t, err)
	table, err := chain.Globals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	acc := applet.NewAccessor(chain, table)
	v, ok := acc.ReadGlobal(ctx, "SPEED")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	list, err := acc.ReadList(ctx, applet.GlobalExportedLogData)
	require.NoError(t, err)
	require.Equal(t, 2, list.Size())
	first, _ := list.Get(0)
	assert.Equal(t, "a", first)

	_, ok = acc.ReadGlobal(ctx, "UNDECLARED")
	assert.False(t, ok)
}

func TestClient_ChainFailureIsNotReady(t *testing.T) {
	a := fake.New("A", "B")
	a.FailNext(applet.HopWorld, 1)
	srv := relay(t, a)
	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	_, err = applet.Resolve(context.Background(), c)
	require.Error(t, err)
	assert.ErrorIs(t, err, applet.ErrNotReady)

	_, err = applet.Resolve(context.Background(), c)
	assert.NoError(t, err)
}

func TestClient_CommandRejected(t *testing.T) {
	a := fake.New("A", "B")
	a.Reject(applet.CmdExportData)
	srv := relay(t, a)
	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	ctx := context.Background()
	chain, err := applet.Resolve(ctx, c)
	require.NoError(t, err)
	table, _ := chain.Globals(ctx)
	acc := applet.NewAccessor(chain, table)

	err = acc.Execute(ctx, applet.CmdExportData)
	assert.ErrorIs(t, err, applet.ErrCommandRejected)
	assert.NoError(t, acc.Execute(ctx, applet.CmdMakeModelData))
	assert.Equal(t, []string{applet.CmdExportData, applet.CmdMakeModelData}, a.Commands())
}

func TestClient_BreakerOpensOnTransportFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL, Options{BreakerThreshold: 2, BreakerReset: time.Hour})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := c.Panel(context.Background())
		assert.ErrorIs(t, err, applet.ErrUnreachable)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, resilience.StateOpen, c.Breaker().State())
}

func TestClient_NotReadyDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"booting"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, Options{BreakerThreshold: 1})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := c.Panel(context.Background())
		assert.ErrorIs(t, err, applet.ErrNotReady)
		assert.True(t, strings.Contains(err.Error(), "booting"))
	}
	assert.Equal(t, resilience.StateClosed, c.Breaker().State())
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"http://relay.local:8080/", "http://relay.local:8080", false},
		{"https://bücher.example/relay", "https://xn--bcher-kva.example/relay", false},
		{"http://user:pw@127.0.0.1:9000?x=1", "http://127.0.0.1:9000", false},
		{"ftp://relay", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeBaseURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeValue_ArraysBecomeSlices(t *testing.T) {
	v, err := decodeValue(json.RawMessage(`[1, "a", [true]]`))
	require.NoError(t, err)
	s, ok := v.(applet.Slice)
	require.True(t, ok)
	assert.Equal(t, 3, s.Size())
	assert.Equal(t, applet.Slice{true}, s[2])

	v, err = decodeValue(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, v)
}
