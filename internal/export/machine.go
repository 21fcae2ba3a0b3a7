// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package export

import "github.com/ManuGH/nlbridge/internal/fsm"

// State of the data-export coordinator.
type State string

const (
	StateIdle      State = "idle"
	StateRequested State = "requested"
	StateDataReady State = "data_ready"
)

// Event drives the coordinator machine.
type Event string

const (
	EventTrigger  Event = "trigger"
	EventAccepted Event = "accepted"
	EventRejected Event = "rejected"
	EventDone     Event = "done"
	EventTimeout  Event = "timeout"
)

func newMachine() *fsm.Machine[State, Event] {
	return fsm.MustNew(StateIdle, []fsm.Transition[State, Event]{
		{From: StateIdle, Event: EventTrigger, To: StateRequested},
		{From: StateRequested, Event: EventAccepted, To: StateDataReady},
		{From: StateRequested, Event: EventRejected, To: StateIdle},
		{From: StateDataReady, Event: EventDone, To: StateIdle},
		{From: StateDataReady, Event: EventTimeout, To: StateIdle},
	})
}
