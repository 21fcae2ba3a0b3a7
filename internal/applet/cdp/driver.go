// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cdp drives an applet embedded in a Chrome page over the DevTools
// protocol. Every hop of the accessor chain is a Runtime.evaluate call
// against the applet element.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ManuGH/nlbridge/internal/applet"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// DefaultElementID is the DOM id of the applet element.
const DefaultElementID = "netlogo-applet"

// Options configures a Driver.
type Options struct {
	// RemoteURL is the DevTools websocket or http endpoint of a running browser.
	RemoteURL string
	// PageURL, when set, is opened in a new tab on Open.
	PageURL   string
	ElementID string
}

// Driver implements applet.Applet on top of a browser tab.
type Driver struct {
	opts   Options
	logger zerolog.Logger

	mu          sync.Mutex
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Open attaches to the browser at opts.RemoteURL.
func Open(ctx context.Context, opts Options) (*Driver, error) {
	if opts.RemoteURL == "" {
		return nil, fmt.Errorf("cdp: remote url is required")
	}
	if opts.ElementID == "" {
		opts.ElementID = DefaultElementID
	}
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	d := &Driver{
		opts:        opts,
		logger:      xglog.WithComponent("cdp"),
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}

	var actions []chromedp.Action
	if opts.PageURL != "" {
		actions = append(actions, chromedp.Navigate(opts.PageURL))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: attach browser: %v", applet.ErrUnreachable, err)
	}
	d.logger.Info().
		Str(xglog.FieldEvent, "cdp.attached").
		Str("page", opts.PageURL).
		Str("element", opts.ElementID).
		Msg("attached to browser tab")
	return d, nil
}

// Close detaches from the browser. The browser itself keeps running.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelTab != nil {
		d.cancelTab()
		d.cancelTab = nil
	}
	if d.cancelAlloc != nil {
		d.cancelAlloc()
		d.cancelAlloc = nil
	}
}

// result is the envelope every evaluated script returns.
type result struct {
	Missing string          `json:"missing,omitempty"`
	Error   string          `json:"error,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// eval runs script in the tab. ctx bounds the call; the tab context carries
// the browser target.
func (d *Driver) eval(ctx context.Context, script string) (result, error) {
	d.mu.Lock()
	tab := d.tabCtx
	d.mu.Unlock()

	var raw string
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(tab, chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithSilent(true)
		}))
	}()

	select {
	case <-ctx.Done():
		return result{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return result{}, fmt.Errorf("%w: evaluate: %v", applet.ErrUnreachable, err)
		}
	}
	return decodeResult(raw)
}

func decodeResult(raw string) (result, error) {
	var r result
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return result{}, fmt.Errorf("cdp: decode result: %w", err)
	}
	return r, nil
}
