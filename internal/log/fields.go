// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldAttempt   = "attempt"

	// Applet fields
	FieldGlobal   = "global"
	FieldCommand  = "command"
	FieldGlobals  = "globals"
	FieldDriver   = "driver"
	FieldHop      = "hop"
	FieldPayload  = "payload_kind"
	FieldRunTS    = "run_timestamp"
	FieldLogLines = "log_lines"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
