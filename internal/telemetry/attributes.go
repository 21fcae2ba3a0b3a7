// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	ExportSessionKey = "export.session_id"
	ExportTriggerKey = "export.trigger"
	ExportCommandKey = "export.command"
	ExportSourceKey  = "export.source_global"

	PayloadKindKey     = "payload.kind"
	PayloadBytesKey    = "payload.bytes"
	PayloadExportedKey = "payload.runs_exported"
	PayloadSkippedKey  = "payload.runs_skipped"

	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ExportAttributes describes an export cycle.
func ExportAttributes(sessionID, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ExportSessionKey, sessionID),
		attribute.String(ExportTriggerKey, trigger),
	}
}

// PayloadAttributes describes a dispatched payload.
func PayloadAttributes(kind string, size, exported, skipped int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PayloadKindKey, kind),
		attribute.Int(PayloadBytesKey, size),
		attribute.Int(PayloadExportedKey, exported),
		attribute.Int(PayloadSkippedKey, skipped),
	}
}

// ErrorAttributes classifies a failure.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ErrorTypeKey, errorType),
	}
}
