package expr

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Runtime values are plain Go values: nil, float64, string, bool, []any,
// and map[string]any. ErrValue is the one extra inhabitant.

// ErrValue is the computed error sentinel. Failed conversions produce it
// instead of panicking. It behaves exactly like the client runtime's NaN
// in every operation (falsy, never equal, stringifies as "NaN", coerces to
// NaN) so parity holds; the Reason only exists for server-side diagnostics.
type ErrValue struct {
	Reason string
}

// IsErr reports whether v is the error sentinel.
func IsErr(v any) bool {
	_, ok := v.(ErrValue)
	return ok
}

// Truthy implements the client runtime's truthiness: false, null, 0, NaN,
// and "" are falsy; everything else (including empty lists) is truthy.
// The error sentinel is falsy.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	case ErrValue:
		return false
	default:
		return true
	}
}

// StrictEquals is value+type-strict equality, the semantics of the
// client's === operator. Lists and maps compare by identity there, which
// the server cannot observe, so non-primitive comparisons are false.
func StrictEquals(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

// ToNumber converts v to float64. The second result is false when the
// conversion fails; callers decide between NaN (implicit arithmetic
// coercion) and ErrValue (explicit toNumber).
func ToNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), false
		}
		return n, true
	case ErrValue:
		return math.NaN(), false
	default:
		return math.NaN(), false
	}
}

// ToString renders v the way the client runtime stringifies values in
// concatenation: integral floats without a decimal point, null spelled out,
// lists joined by commas.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		if math.IsNaN(t) {
			return "NaN"
		}
		if math.IsInf(t, 1) {
			return "Infinity"
		}
		if math.IsInf(t, -1) {
			return "-Infinity"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		// Array stringification renders null elements as empty, unlike the
		// explicit join builtin which spells them out.
		parts := make([]string, len(t))
		for i, it := range t {
			if it == nil {
				parts[i] = ""
			} else {
				parts[i] = ToString(it)
			}
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	case ErrValue:
		return "NaN"
	default:
		return ""
	}
}

// StringLength counts UTF-16 code units, matching the client's .length.
func StringLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}
