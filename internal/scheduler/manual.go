// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"sync"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Manual is a Loop whose time only moves when Advance is called.
// Task bodies run on the goroutine calling Advance.
type Manual struct {
	*Loop
	clock *manualClock
}

// NewManual creates a manually driven loop starting at start.
func NewManual(start time.Time) *Manual {
	c := &manualClock{now: start}
	return &Manual{Loop: newLoop(c), clock: c}
}

// Flush runs posted functions without moving time.
func (m *Manual) Flush() {
	m.runPosted()
}

// Advance moves virtual time forward by d, running every task that becomes
// due along the way at its own due time.
func (m *Manual) Advance(d time.Duration) {
	target := m.clock.Now().Add(d)
	for {
		m.runPosted()
		due, ok := m.nextDue()
		if !ok || due.After(target) {
			break
		}
		if due.After(m.clock.Now()) {
			m.clock.set(due)
		}
		m.runDue(due)
	}
	m.runPosted()
	m.clock.set(target)
}
