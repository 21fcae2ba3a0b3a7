// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package applet

import "strings"

// GlobalTable is the ordered list of observer global names of one applet
// instance. Positions are stable for the lifetime of the instance.
type GlobalTable struct {
	names []string
	index map[string]int
}

// ParseGlobals parses the applet's delimited globals string ("[A, B, C]").
// Entries are trimmed; a repeated name keeps the index of its first occurrence.
func ParseGlobals(raw string) GlobalTable {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	parts := strings.Split(s, ",")
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = strings.TrimSpace(p)
	}
	return NewGlobalTable(names)
}

// NewGlobalTable builds a table from already split names.
func NewGlobalTable(names []string) GlobalTable {
	t := GlobalTable{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for i, n := range t.names {
		if _, dup := t.index[n]; !dup {
			t.index[n] = i
		}
	}
	return t
}

// Len returns the number of parsed entries.
func (t GlobalTable) Len() int { return len(t.names) }

// Names returns a copy of the names in applet order.
func (t GlobalTable) Names() []string { return append([]string(nil), t.names...) }

// IndexOf returns the observer index of name.
func (t GlobalTable) IndexOf(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Has reports whether name is a declared global.
func (t GlobalTable) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}
