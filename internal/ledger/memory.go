// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package ledger

import (
	"context"
	"sync"
)

// Memory is a process-local ledger. It is lost on restart.
type Memory struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{seen: make(map[string]struct{})}
}

func (m *Memory) Has(_ context.Context, ts string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.seen[ts]
	return ok, nil
}

func (m *Memory) Add(_ context.Context, ts string) error {
	if ts == "" {
		return ErrEmptyTimestamp
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[ts] = struct{}{}
	return nil
}

func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen), nil
}

func (m *Memory) Close() error { return nil }
