// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testServerConfig() ServerConfig {
	cfg := DefaultServerConfig("127.0.0.1:0")
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func startManager(t *testing.T, mgr Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- mgr.Start(ctx) }()
	require.Eventually(t, func() bool { return mgr.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	return cancel, errChan
}

func waitErr(t *testing.T, errChan <-chan error) error {
	t.Helper()
	select {
	case err := <-errChan:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
		return nil
	}
}

func TestNewManager_ValidDeps(t *testing.T) {
	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:     xglog.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	})
	require.NoError(t, err)
	assert.NotNil(t, mgr)
	assert.Nil(t, mgr.Addr())
}

func TestNewManager_MissingDeps(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler()})
	assert.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test")})
	assert.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestManager_StartStop_OK(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: handler})
	require.NoError(t, err)

	cancel, errChan := startManager(t, mgr)
	defer cancel()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + mgr.Addr().String())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, waitErr(t, errChan))
}

func TestManager_ShutdownOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	mgr, err := NewManager(testServerConfig(), Deps{
		Logger:         xglog.WithComponent("test"),
		APIHandler:     http.NotFoundHandler(),
		BeforeShutdown: func() { record("streams") },
	})
	require.NoError(t, err)
	for _, name := range []string{"first", "second", "third"} {
		name := name
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			record(name)
			return nil
		})
	}

	cancel, errChan := startManager(t, mgr)
	cancel()
	require.NoError(t, waitErr(t, errChan))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"streams", "third", "second", "first"}, order)
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	errLedger := errors.New("ledger close failed")
	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)
	mgr.RegisterShutdownHook("ledger", func(context.Context) error { return errLedger })
	ran := false
	mgr.RegisterShutdownHook("sinks", func(context.Context) error { ran = true; return nil })

	cancel, errChan := startManager(t, mgr)
	cancel()
	err = waitErr(t, errChan)
	require.Error(t, err)
	assert.ErrorIs(t, err, errLedger)
	assert.Contains(t, err.Error(), "hook ledger")
	assert.True(t, ran, "later hooks still run")
}

func TestManager_Shutdown_TimesOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	requestStarted := make(chan struct{})
	releaseHandler := make(chan struct{})
	var once sync.Once
	handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(requestStarted) })
		select {
		case <-r.Context().Done():
		case <-releaseHandler:
		}
	})

	cfg := testServerConfig()
	cfg.ShutdownTimeout = 100 * time.Millisecond
	mgr, err := NewManager(cfg, Deps{Logger: xglog.WithComponent("test"), APIHandler: handler})
	require.NoError(t, err)

	cancel, errChan := startManager(t, mgr)
	defer cancel()

	requestDone := make(chan struct{})
	go func() {
		defer close(requestDone)
		client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		resp, err := client.Get("http://" + mgr.Addr().String())
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected in-flight request before shutdown")
	}

	cancel()
	err = waitErr(t, errChan)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(releaseHandler)
	select {
	case <-requestDone:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked request did not terminate after shutdown")
	}
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(testServerConfig(), Deps{Logger: xglog.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	taken := httptest.NewServer(http.NotFoundHandler())
	defer taken.Close()

	cfg := testServerConfig()
	cfg.ListenAddr = taken.Listener.Addr().String()
	mgr, err := NewManager(cfg, Deps{Logger: xglog.WithComponent("test"), APIHandler: http.NotFoundHandler()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = mgr.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
