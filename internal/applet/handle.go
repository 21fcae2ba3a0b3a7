// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package applet

import "sync"

// Handle is the live applet capability shared by the coordinators.
// It is written once, when the readiness detector flips it to ready.
type Handle struct {
	mu       sync.RWMutex
	applet   Applet
	ready    bool
	attempts int
	accessor *Accessor
}

// NewHandle wraps an applet that has not been probed yet.
func NewHandle(a Applet) *Handle {
	return &Handle{applet: a}
}

// Applet returns the wrapped applet.
func (h *Handle) Applet() Applet { return h.applet }

// Ready reports whether the applet passed readiness detection.
func (h *Handle) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Attempts returns the number of readiness probes performed.
func (h *Handle) Attempts() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attempts
}

// Accessor returns the global accessor once the applet is ready.
func (h *Handle) Accessor() (*Accessor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.accessor, h.ready
}

// RecordAttempt counts one readiness probe and returns the new total.
func (h *Handle) RecordAttempt() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attempts++
	return h.attempts
}

// MarkReady publishes the accessor. Only the first call has an effect.
func (h *Handle) MarkReady(acc *Accessor) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ready {
		return false
	}
	h.ready = true
	h.accessor = acc
	return true
}
