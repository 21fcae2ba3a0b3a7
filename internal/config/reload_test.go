// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"os"
	"testing"
	"time"

	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHolder(t *testing.T, body string) (*ConfigHolder, string) {
	t.Helper()
	t.Setenv("NLB_DATA_DIR", t.TempDir())
	t.Cleanup(func() { _ = xglog.SetLevel("info") })

	path := writeConfig(t, body)
	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)
	return NewConfigHolder(cfg, loader), path
}

func TestConfigHolder_Reload(t *testing.T) {
	h, path := newHolder(t, "logLevel: info\n")

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\nexport:\n  autoExport: true\n"), 0o600))
	require.NoError(t, h.Reload(context.Background()))

	assert.Equal(t, "debug", h.Get().LogLevel)
	select {
	case got := <-ch:
		assert.True(t, got.Export.AutoExport)
	default:
		t.Fatal("listener was not notified")
	}
}

func TestConfigHolder_ReloadKeepsOldOnError(t *testing.T) {
	h, path := newHolder(t, "logLevel: warn\n")

	require.NoError(t, os.WriteFile(path, []byte("logLevel: shouting\n"), 0o600))
	require.Error(t, h.Reload(context.Background()))
	assert.Equal(t, "warn", h.Get().LogLevel)
}

func TestConfigHolder_ListenerNeverBlocks(t *testing.T) {
	h, _ := newHolder(t, "logLevel: info\n")
	full := make(chan AppConfig)
	h.RegisterListener(full)

	done := make(chan struct{})
	go func() {
		_ = h.Reload(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked on a listener")
	}
}

func TestConfigHolder_Watcher(t *testing.T) {
	h, path := newHolder(t, "logLevel: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, h.StartWatcher(ctx))

	require.NoError(t, os.WriteFile(path, []byte("logLevel: error\n"), 0o600))
	require.Eventually(t, func() bool {
		return h.Get().LogLevel == "error"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConfigHolder_WatcherDisabledWithoutFile(t *testing.T) {
	t.Setenv("NLB_DATA_DIR", t.TempDir())
	loader := NewLoader("", "")
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewConfigHolder(cfg, loader)
	assert.NoError(t, h.StartWatcher(context.Background()))
}
