// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ManuGH/nlbridge/internal/applet"
	xglog "github.com/ManuGH/nlbridge/internal/log"
)

// Panel implements applet.Applet. One status call decides which hops of the
// chain are currently available.
func (c *Client) Panel(ctx context.Context) (applet.Panel, error) {
	var st statusResponse
	if err := c.do(ctx, http.MethodGet, "/applet/status", nil, &st); err != nil {
		return nil, err
	}
	if applet.Hop(st.Missing) == applet.HopPanel || applet.Hop(st.Missing) == applet.HopApplet {
		return nil, fmt.Errorf("%w: relay reports %s missing", applet.ErrNotReady, st.Missing)
	}
	return &panel{c: c, missing: applet.Hop(st.Missing)}, nil
}

type panel struct {
	c       *Client
	missing applet.Hop
}

func (p *panel) hop(h applet.Hop) error {
	if p.missing == h {
		return fmt.Errorf("%w: relay reports %s missing", applet.ErrNotReady, h)
	}
	return nil
}

func (p *panel) Workspace(context.Context) (applet.Workspace, error) {
	if err := p.hop(applet.HopWorkspace); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *panel) World(context.Context) (applet.World, error) {
	if err := p.hop(applet.HopWorld); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *panel) Program(context.Context) (applet.Program, error) {
	if err := p.hop(applet.HopProgram); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *panel) Observer(context.Context) (applet.Observer, error) {
	if err := p.hop(applet.HopObserver); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *panel) Globals(ctx context.Context) (string, error) {
	var g globalsResponse
	if err := p.c.do(ctx, http.MethodGet, "/applet/globals", nil, &g); err != nil {
		return "", err
	}
	return g.Globals, nil
}

func (p *panel) GetVariable(ctx context.Context, index int) (applet.Value, error) {
	var v valueResponse
	err := p.c.do(ctx, http.MethodGet, "/applet/observer/"+strconv.Itoa(index), nil, &v)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeValue(v.Value)
}

// CommandLater queues cmd, waiting for the command rate limiter first.
func (p *panel) CommandLater(ctx context.Context, cmd string) error {
	if err := p.c.limiter.Wait(ctx); err != nil {
		return err
	}
	err := p.c.do(ctx, http.MethodPost, "/applet/command", commandRequest{Command: cmd}, nil)
	if err != nil {
		p.c.logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "bridge.command_failed").
			Str(xglog.FieldCommand, cmd).
			Msg("relay did not accept command")
	}
	return err
}

// decodeValue maps JSON onto applet values. Arrays become applet.Slice.
func decodeValue(raw json.RawMessage) (applet.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("bridge: decode value: %w", err)
	}
	return toValue(v), nil
}

func toValue(v any) applet.Value {
	arr, ok := v.([]any)
	if !ok {
		return v
	}
	out := make(applet.Slice, len(arr))
	for i, item := range arr {
		out[i] = toValue(item)
	}
	return out
}
