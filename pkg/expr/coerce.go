package expr

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
)

// ParseNumber converts a value to float64 the way a loose numeric cast
// would: nil and blank strings are 0, booleans are 0/1, numeric strings are
// parsed after trimming, a single-element list converts its element.
// ok is false when the value has no numeric reading.
func ParseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, true
		}
		return parseNumeric(s)
	case []any:
		switch len(n) {
		case 0:
			return 0, true
		case 1:
			return ParseNumber(n[0])
		}
		return 0, false
	default:
		return 0, false
	}
}

// parseNumeric reads a trimmed numeric literal: decimal with optional
// exponent, "Infinity" with an optional sign, or an unsigned integer with a
// 0x, 0o or 0b prefix. Go-only spellings such as "inf", "NaN", hex floats
// and digit separators are rejected.
func parseNumeric(s string) (float64, bool) {
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			digits := s[2:]
			if digits[0] == '+' || digits[0] == '-' {
				return 0, false
			}
			i, ok := new(big.Int).SetString(digits, base)
			if !ok {
				return 0, false
			}
			f, _ := new(big.Float).SetInt(i).Float64()
			return f, true
		}
	}

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == 'e', r == 'E', r == '+', r == '-':
		default:
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Overflow reads as an infinity, as it does for numeric literals.
		if errors.Is(err, strconv.ErrRange) && math.IsInf(f, 0) {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// ToNumber is ParseNumber with 0 for values that have no numeric reading.
func ToNumber(v any) float64 {
	f, _ := ParseNumber(v)
	return f
}

// ToBool is the boolean-field coercion: strings are true only for
// "true", "1" or "yes" (case-insensitive); other values use Truthy.
func ToBool(v any) bool {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "yes":
			return true
		}
		return false
	}
	return Truthy(v)
}

// Truthy decides whether a value counts as true in a condition.
// nil, false, 0, blank strings and empty lists are falsy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if isNumeric(v) {
		f, ok := ParseNumber(v)
		return ok && f != 0
	}
	return true
}

// ToString renders a value as text. nil renders as the empty string.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
	if f, ok := ParseNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

// Equal compares two evaluated values. Numbers compare numerically across
// Go numeric types; everything else compares structurally.
func Equal(a, b any) bool {
	if isNumeric(a) && isNumeric(b) {
		x, _ := ParseNumber(a)
		y, _ := ParseNumber(b)
		return x == y
	}
	return reflect.DeepEqual(Canonical(a), Canonical(b))
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	}
	return false
}

// Canonical rewrites a decoded value into the shapes encoding/json produces:
// numbers become float64, maps become map[string]any, lists become []any.
// Values with no JSON shape become nil.
func Canonical(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Canonical(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = Canonical(e)
		}
		return out
	}
	if isNumeric(v) {
		f, ok := ParseNumber(v)
		if !ok || math.IsInf(f, 0) {
			return nil
		}
		return f
	}
	return nil
}

// AsMap exposes the map view used by the parser to other packages.
func AsMap(v any) (map[string]any, bool) { return asMap(v) }

// AsSlice exposes the list view used by the parser to other packages.
func AsSlice(v any) ([]any, bool) { return asSlice(v) }

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, e := range m {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = e
		}
		return out, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	}
	return nil, false
}
