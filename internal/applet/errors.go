// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package applet

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady marks every transient failure while the applet initialises.
	ErrNotReady = errors.New("applet: not ready")
	// ErrUnreachable means the driver could not talk to the applet at all.
	ErrUnreachable = errors.New("applet: unreachable")
	// ErrCommandRejected means the loaded simulation did not accept a command.
	ErrCommandRejected = errors.New("applet: command rejected")
	// ErrUnknownGlobal means the name is not in the global table.
	ErrUnknownGlobal = errors.New("applet: unknown global")
)

// Hop names a step of the applet accessor chain.
type Hop string

const (
	HopApplet    Hop = "applet"
	HopPanel     Hop = "panel"
	HopWorkspace Hop = "workspace"
	HopWorld     Hop = "world"
	HopProgram   Hop = "program"
	HopObserver  Hop = "observer"
	HopGlobals   Hop = "globals"
)

// ChainError reports which hop of the accessor chain failed.
// It always matches ErrNotReady via errors.Is.
type ChainError struct {
	Hop Hop
	Err error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("applet: %s unavailable: %v", e.Hop, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// Is makes every chain failure a not-ready failure.
func (e *ChainError) Is(target error) bool {
	return target == ErrNotReady
}

// CommandError wraps a failed command with the command text.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("applet: command %q failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Is makes every command failure match ErrCommandRejected.
func (e *CommandError) Is(target error) bool {
	return target == ErrCommandRejected
}
