// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package applet

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Truthy applies script-style truthiness to an applet value.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

// NonEmpty accepts values that are truthy.
func NonEmpty(v Value) bool { return Truthy(v) }

// Text renders a value as literal text. Strings are returned unchanged.
func Text(v Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Slice adapts a Go slice to List.
type Slice []Value

// Size implements List.
func (s Slice) Size() int { return len(s) }

// Get implements List.
func (s Slice) Get(i int) (Value, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("applet: list index %d out of range [0,%d)", i, len(s))
	}
	return s[i], nil
}
