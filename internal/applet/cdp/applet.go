// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/nlbridge/internal/applet"
)

// Panel implements applet.Applet.
func (d *Driver) Panel(ctx context.Context) (applet.Panel, error) {
	r, err := d.eval(ctx, statusScript(d.opts.ElementID))
	if err != nil {
		return nil, err
	}
	missing := applet.Hop(r.Missing)
	if missing == applet.HopApplet || missing == applet.HopPanel {
		return nil, hopError(missing, r.Error)
	}
	return &tab{d: d, missing: missing, detail: r.Error}, nil
}

func hopError(h applet.Hop, detail string) error {
	if detail == "" {
		return fmt.Errorf("%w: %s missing", applet.ErrNotReady, h)
	}
	return fmt.Errorf("%w: %s missing: %s", applet.ErrNotReady, h, detail)
}

type tab struct {
	d       *Driver
	missing applet.Hop
	detail  string
}

func (t *tab) hop(h applet.Hop) error {
	if t.missing == h {
		return hopError(h, t.detail)
	}
	return nil
}

func (t *tab) Workspace(context.Context) (applet.Workspace, error) {
	return t, t.hop(applet.HopWorkspace)
}

func (t *tab) World(context.Context) (applet.World, error) {
	return t, t.hop(applet.HopWorld)
}

func (t *tab) Program(context.Context) (applet.Program, error) {
	return t, t.hop(applet.HopProgram)
}

func (t *tab) Observer(context.Context) (applet.Observer, error) {
	return t, t.hop(applet.HopObserver)
}

func (t *tab) Globals(ctx context.Context) (string, error) {
	r, err := t.d.eval(ctx, globalsScript(t.d.opts.ElementID))
	if err != nil {
		return "", err
	}
	if r.Missing != "" {
		return "", hopError(applet.Hop(r.Missing), r.Error)
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err != nil {
		return "", fmt.Errorf("cdp: globals: %w", err)
	}
	return s, nil
}

func (t *tab) GetVariable(ctx context.Context, index int) (applet.Value, error) {
	r, err := t.d.eval(ctx, variableScript(t.d.opts.ElementID, index))
	if err != nil {
		return nil, err
	}
	if r.Missing != "" {
		return nil, hopError(applet.Hop(r.Missing), r.Error)
	}
	if r.Error != "" {
		return nil, errors.New(r.Error)
	}
	return decodeValue(r.Value)
}

func (t *tab) CommandLater(ctx context.Context, cmd string) error {
	r, err := t.d.eval(ctx, commandScript(t.d.opts.ElementID, cmd))
	if err != nil {
		return err
	}
	if r.Missing != "" {
		return hopError(applet.Hop(r.Missing), r.Error)
	}
	if r.Error != "" {
		return fmt.Errorf("%w: %s", applet.ErrCommandRejected, r.Error)
	}
	return nil
}

func decodeValue(raw json.RawMessage) (applet.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("cdp: decode value: %w", err)
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
