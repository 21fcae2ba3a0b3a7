// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ledger records which multi-run timestamps have already been exported.
//
// A ledger only grows. Entries are never pruned, so a run that was exported
// once is skipped by every later dispatch that sees the same ledger.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// DefaultNamespace scopes entries when Config.Namespace is empty.
const DefaultNamespace = "default"

var (
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("ledger: unknown backend")
	// ErrEmptyTimestamp is returned when adding an empty timestamp.
	ErrEmptyTimestamp = errors.New("ledger: empty timestamp")
)

// TimestampSet is the set of processed run timestamps.
type TimestampSet interface {
	Has(ctx context.Context, ts string) (bool, error)
	Add(ctx context.Context, ts string) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend   string
	Path      string
	RedisAddr string
	RedisDB   int
	Namespace string
}

// Open creates the configured TimestampSet.
func Open(ctx context.Context, cfg Config) (TimestampSet, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("ledger: sqlite backend requires a path")
		}
		return OpenSQLite(cfg.Path, ns)
	case BackendBadger:
		if cfg.Path == "" {
			return nil, fmt.Errorf("ledger: badger backend requires a path")
		}
		return OpenBadger(cfg.Path, ns)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("ledger: redis backend requires an address")
		}
		return OpenRedis(ctx, RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB}, ns)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
