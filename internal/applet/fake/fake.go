// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fake provides a scriptable in-memory applet for tests and simulation mode.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/nlbridge/internal/applet"
)

// Applet is an in-memory applet. All methods are safe for concurrent use.
type Applet struct {
	mu        sync.Mutex
	names     []string
	values    map[string]applet.Value
	failures  map[applet.Hop]int
	rawGlobal *string
	commands  []string
	effects   map[string]func(*Applet) error
	probes    int
}

// New creates an applet declaring the given globals in order.
func New(names ...string) *Applet {
	return &Applet{
		names:    append([]string(nil), names...),
		values:   make(map[string]applet.Value),
		failures: make(map[applet.Hop]int),
		effects:  make(map[string]func(*Applet) error),
	}
}

// Declare appends globals to the table.
func (a *Applet) Declare(names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, names...)
}

// Set stores the live value of a global. Undeclared names are ignored by reads.
func (a *Applet) Set(name string, v applet.Value) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[name] = v
}

// Value returns the stored value of a global.
func (a *Applet) Value(name string) applet.Value {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.values[name]
}

// FailNext makes the next n traversals of hop fail.
func (a *Applet) FailNext(hop applet.Hop, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[hop] = n
}

// SetGlobalsString overrides the raw globals string returned by the program.
func (a *Applet) SetGlobalsString(raw string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rawGlobal = &raw
}

// ClearGlobalsString restores the generated globals string.
func (a *Applet) ClearGlobalsString() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rawGlobal = nil
}

// OnCommand installs the effect of cmd. A returned error rejects the command.
func (a *Applet) OnCommand(cmd string, fn func(*Applet) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.effects[cmd] = fn
}

// Reject makes cmd fail with an unknown-command error.
func (a *Applet) Reject(cmd string) {
	a.OnCommand(cmd, func(*Applet) error {
		return fmt.Errorf("nothing named %s has been defined", strings.ToUpper(cmd))
	})
}

// Commands returns every command received, in order, including rejected ones.
func (a *Applet) Commands() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.commands...)
}

// CommandCount returns how often cmd was received.
func (a *Applet) CommandCount(cmd string) int {
	n := 0
	for _, c := range a.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// Probes returns how many times the chain was entered through Panel.
func (a *Applet) Probes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.probes
}

func (a *Applet) fail(hop applet.Hop) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failures[hop] > 0 {
		a.failures[hop]--
		return fmt.Errorf("%s not initialised", hop)
	}
	return nil
}

// Panel implements applet.Applet.
func (a *Applet) Panel(context.Context) (applet.Panel, error) {
	a.mu.Lock()
	a.probes++
	a.mu.Unlock()
	if err := a.fail(applet.HopPanel); err != nil {
		return nil, err
	}
	return panel{a}, nil
}

type panel struct{ a *Applet }

func (p panel) Workspace(context.Context) (applet.Workspace, error) {
	if err := p.a.fail(applet.HopWorkspace); err != nil {
		return nil, err
	}
	return workspace(p), nil
}

func (p panel) CommandLater(_ context.Context, cmd string) error {
	a := p.a
	a.mu.Lock()
	a.commands = append(a.commands, cmd)
	fn := a.effects[cmd]
	a.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(a)
}

type workspace struct{ a *Applet }

func (w workspace) World(context.Context) (applet.World, error) {
	if err := w.a.fail(applet.HopWorld); err != nil {
		return nil, err
	}
	return world(w), nil
}

type world struct{ a *Applet }

func (w world) Program(context.Context) (applet.Program, error) {
	if err := w.a.fail(applet.HopProgram); err != nil {
		return nil, err
	}
	return program(w), nil
}

func (w world) Observer(context.Context) (applet.Observer, error) {
	if err := w.a.fail(applet.HopObserver); err != nil {
		return nil, err
	}
	return observer(w), nil
}

type program struct{ a *Applet }

func (p program) Globals(context.Context) (string, error) {
	if err := p.a.fail(applet.HopGlobals); err != nil {
		return "", err
	}
	p.a.mu.Lock()
	defer p.a.mu.Unlock()
	if p.a.rawGlobal != nil {
		return *p.a.rawGlobal, nil
	}
	return "[" + strings.Join(p.a.names, ", ") + "]", nil
}

type observer struct{ a *Applet }

func (o observer) GetVariable(_ context.Context, index int) (applet.Value, error) {
	o.a.mu.Lock()
	defer o.a.mu.Unlock()
	if index < 0 || index >= len(o.a.names) {
		return nil, fmt.Errorf("observer variable %d out of range", index)
	}
	return o.a.values[o.a.names[index]], nil
}
