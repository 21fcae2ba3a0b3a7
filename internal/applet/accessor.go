// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package applet

import (
	"context"
	"fmt"

	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/rs/zerolog"
)

// Accessor reads observer globals by name and issues commands.
// It performs exactly one probe per call; retrying is the caller's job.
type Accessor struct {
	chain  *Chain
	table  GlobalTable
	logger zerolog.Logger
}

// NewAccessor binds a resolved chain to its global table.
func NewAccessor(chain *Chain, table GlobalTable) *Accessor {
	return &Accessor{
		chain:  chain,
		table:  table,
		logger: xglog.WithComponent("applet"),
	}
}

// Table returns the global table the accessor was built with.
func (a *Accessor) Table() GlobalTable { return a.table }

// ReadGlobal returns the current value of name. ok is false when the name is
// not declared by the running simulation or the read failed; callers must
// treat that as "unknown", not as false.
func (a *Accessor) ReadGlobal(ctx context.Context, name string) (Value, bool) {
	idx, found := a.table.IndexOf(name)
	if !found {
		return nil, false
	}
	v, err := a.chain.Observer.GetVariable(ctx, idx)
	if err != nil {
		a.logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "applet.read_failed").
			Str(xglog.FieldGlobal, name).
			Msg("global read failed")
		return nil, false
	}
	if v == nil {
		return nil, false
	}
	return v, true
}

// First returns the first candidate whose value is known and accepted.
// A nil accept function accepts every known value.
func (a *Accessor) First(ctx context.Context, candidates []string, accept func(Value) bool) (Value, string, bool) {
	for _, name := range candidates {
		v, ok := a.ReadGlobal(ctx, name)
		if !ok {
			continue
		}
		if accept != nil && !accept(v) {
			continue
		}
		return v, name, true
	}
	return nil, "", false
}

// Execute queues cmd on the applet panel.
func (a *Accessor) Execute(ctx context.Context, cmd string) error {
	if err := a.chain.Panel.CommandLater(ctx, cmd); err != nil {
		return &CommandError{Command: cmd, Err: err}
	}
	return nil
}

// ReadList reads name as an ordered collection.
func (a *Accessor) ReadList(ctx context.Context, name string) (List, error) {
	v, ok := a.ReadGlobal(ctx, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGlobal, name)
	}
	switch l := v.(type) {
	case List:
		return l, nil
	case []any:
		return Slice(l), nil
	default:
		return nil, fmt.Errorf("applet: global %s is %T, not a list", name, v)
	}
}
