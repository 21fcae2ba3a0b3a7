// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package applet models the embedded simulation applet as a chain of
// accessors and provides name-based reads of its observer globals.
package applet

import "context"

// Value is a raw value read from the applet. Drivers produce bool, float64,
// string, List or nil.
type Value = any

// List is an ordered, finite, position-indexable collection owned by the applet.
type List interface {
	Size() int
	Get(i int) (Value, error)
}

// Applet is the live applet object exposed by the host page.
type Applet interface {
	Panel(ctx context.Context) (Panel, error)
}

// Panel is the applet's top-level panel. Commands are queued through it.
type Panel interface {
	Workspace(ctx context.Context) (Workspace, error)
	CommandLater(ctx context.Context, cmd string) error
}

// Workspace gives access to the running world.
type Workspace interface {
	World(ctx context.Context) (World, error)
}

// World exposes the compiled program and the observer agent.
type World interface {
	Program(ctx context.Context) (Program, error)
	Observer(ctx context.Context) (Observer, error)
}

// Program exposes the declared global variable names.
type Program interface {
	// Globals returns the delimited global name list, e.g. "[A, B, C]".
	Globals(ctx context.Context) (string, error)
}

// Observer holds the live values of the globals, addressed by index.
type Observer interface {
	GetVariable(ctx context.Context, index int) (Value, error)
}

// Chain is a fully resolved path from the applet down to its globals.
type Chain struct {
	Panel     Panel
	Workspace Workspace
	World     World
	Program   Program
	Observer  Observer
}

// Resolve walks panel -> workspace -> world -> program/observer.
// Any failing hop is reported as a *ChainError, which matches ErrNotReady.
func Resolve(ctx context.Context, a Applet) (*Chain, error) {
	if a == nil {
		return nil, &ChainError{Hop: HopApplet, Err: ErrUnreachable}
	}
	panel, err := a.Panel(ctx)
	if err != nil {
		return nil, &ChainError{Hop: HopPanel, Err: err}
	}
	ws, err := panel.Workspace(ctx)
	if err != nil {
		return nil, &ChainError{Hop: HopWorkspace, Err: err}
	}
	world, err := ws.World(ctx)
	if err != nil {
		return nil, &ChainError{Hop: HopWorld, Err: err}
	}
	program, err := world.Program(ctx)
	if err != nil {
		return nil, &ChainError{Hop: HopProgram, Err: err}
	}
	observer, err := world.Observer(ctx)
	if err != nil {
		return nil, &ChainError{Hop: HopObserver, Err: err}
	}
	return &Chain{
		Panel:     panel,
		Workspace: ws,
		World:     world,
		Program:   program,
		Observer:  observer,
	}, nil
}

// Globals reads and parses the global name table through the chain.
func (c *Chain) Globals(ctx context.Context) (GlobalTable, error) {
	raw, err := c.Program.Globals(ctx)
	if err != nil {
		return GlobalTable{}, &ChainError{Hop: HopGlobals, Err: err}
	}
	return ParseGlobals(raw), nil
}
