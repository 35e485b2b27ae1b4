// Package diff computes and applies structural diffs over JSON-shaped
// record values (maps, slices, and scalars decoded from encoding/json).
package diff

import "math"

// Equal reports whether a and b are structurally identical JSON values.
//
// It does not use reflect.DeepEqual or any map/slice iteration-order
// sensitive comparison. Numeric +0 and -0 compare equal; NaN never equals
// itself, mirroring IEEE-754 semantics rather than Go's untyped constant
// rules, because the wire codec transports records as float64 after
// encoding/json decode.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bw, ok := bv[k]
			if !ok || !Equal(v, bw) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(av) || math.IsNaN(bv) {
			return false
		}
		return av == bv
	case nil:
		return b == nil
	default:
		return a == b
	}
}
