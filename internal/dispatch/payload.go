// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package dispatch

import (
	"encoding/json"
	"strings"

	"github.com/ManuGH/nlbridge/internal/netlogo"
)

// Kind tags a classified payload.
type Kind string

const (
	KindSingle       Kind = "single"
	KindMultiRun     Kind = "multi_run"
	KindUnrecognized Kind = "unrecognized"
	// KindText marks a payload shown verbatim instead of being parsed.
	KindText Kind = "text"
)

// Keys that identify a payload shape.
const (
	keyCollectionName = "collection_name"
	keyDescription    = "description"
)

// Payload is a classified export result.
type Payload struct {
	Kind Kind
	Raw  string
	// Object is set for KindSingle.
	Object map[string]any
	// Document is set for KindMultiRun when its descriptors decode.
	Document *netlogo.Document
	// DecodeErr is set for a KindMultiRun payload whose document is malformed.
	DecodeErr error
	// Reason explains KindUnrecognized.
	Reason string
}

// Classify decodes raw and tags it by shape. The shape is decided by key
// presence alone, so a null collection_name still means a single record and
// collection_name wins over description when both are present.
func Classify(raw string) Payload {
	p := Payload{Kind: KindUnrecognized, Raw: raw}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		p.Reason = "empty payload"
		return p
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		p.Reason = "invalid json: " + err.Error()
		return p
	}
	if obj == nil {
		p.Reason = "not a json object"
		return p
	}

	if _, ok := obj[keyCollectionName]; ok {
		p.Kind = KindSingle
		p.Object = obj
		return p
	}
	if _, ok := obj[keyDescription]; ok {
		p.Kind = KindMultiRun
		p.Document, p.DecodeErr = netlogo.Decode([]byte(trimmed))
		return p
	}

	p.Reason = "neither collection_name nor description present"
	return p
}
