package artifact

import "math"

// probeSamples are the inputs an update function is tested with. Negative
// and non-trivial values catch functions that only look additive near
// zero.
var probeSamples = [...]float64{0, 1, 7, -3}

// ProbeAdditive classifies an update function. It returns the constant
// additive offset and true when fn behaves as x+c for every sample;
// anything else fails closed. Functions expressed this way are the
// increment/decrement idiom, nothing more is inferred.
func ProbeAdditive(fn func(any) any) (float64, bool) {
	if fn == nil {
		return 0, false
	}
	var offset float64
	for i, in := range probeSamples {
		out, ok := asFloat(fn(in))
		if !ok || math.IsNaN(out) || math.IsInf(out, 0) {
			return 0, false
		}
		delta := out - in
		if i == 0 {
			offset = delta
			continue
		}
		if delta != offset {
			return 0, false
		}
	}
	return offset, true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
