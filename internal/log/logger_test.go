// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_AttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "svc-test", Version: "v0"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("readiness")
	l.Info().Str(FieldEvent, "readiness.ready").Msg("ok")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "svc-test", entry["service"])
	assert.Equal(t, "v0", entry["version"])
	assert.Equal(t, "readiness", entry[FieldComponent])
	assert.Equal(t, "readiness.ready", entry[FieldEvent])
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := ContextWithSessionID(context.Background(), "sess-1")
	ctx = ContextWithRequestID(ctx, "req-1")
	enriched := WithContext(ctx, l)
	enriched.Info().Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sess-1", entry[FieldSessionID])
	assert.Equal(t, "req-1", entry[FieldRequestID])
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	out := WithContext(context.Background(), l)
	out.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, has := entry[FieldSessionID]
	assert.False(t, has)
}

func TestSetLevel_RejectsUnknown(t *testing.T) {
	assert.Error(t, SetLevel("loud"))
	require.NoError(t, SetLevel("info"))
}
