package ruleset

import (
	"math"

	"github.com/dlovans/charsheet/pkg/expr"
)

// ZeroValue is the value a field of type t holds when nothing was set.
func ZeroValue(t FieldType) any {
	switch t {
	case FieldNumber, FieldComputed:
		return float64(0)
	case FieldBoolean:
		return false
	case FieldMultiSelect:
		return []any{}
	default:
		return ""
	}
}

// CoerceValue converts v to the value type of field b. ok is false when v
// cannot be represented (non-numeric number, select value outside options);
// the returned value is then the type's zero value.
func CoerceValue(b *Box, v any) (any, bool) {
	switch b.FieldType {
	case FieldNumber, FieldComputed:
		f, ok := expr.ParseNumber(v)
		if !ok || math.IsInf(f, 0) {
			return float64(0), false
		}
		return f, true

	case FieldText:
		return expr.ToString(v), true

	case FieldBoolean:
		return expr.ToBool(v), true

	case FieldSingleSelect:
		s := expr.ToString(v)
		if s == "" || isValidOption(s, b.Options) {
			return s, true
		}
		return "", false

	case FieldMultiSelect:
		if v == nil {
			return []any{}, true
		}
		items, ok := expr.AsSlice(v)
		if !ok {
			return []any{}, false
		}
		out := make([]any, 0, len(items))
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			s := expr.ToString(item)
			if !isValidOption(s, b.Options) {
				return []any{}, false
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// isValidOption checks if a value is in the allowed options list.
// An empty list allows anything.
func isValidOption(value string, options []string) bool {
	if len(options) == 0 {
		return true
	}
	for _, opt := range options {
		if opt == value {
			return true
		}
	}
	return false
}
