package diff

// arrayPatchThreshold is the fraction of changed indices below which a
// same-length array is expressed as a per-index Patch instead of a whole
// replacement. See spec §3 "Diff Operations": "≤20% indices changed".
const arrayPatchThreshold = 0.2

// Diff computes a structural diff between prev and next, both JSON-shaped
// values as produced by encoding/json (map[string]any, []any, and
// scalars). It returns nil when prev and next are structurally equal.
//
// Diff only operates meaningfully on map[string]any inputs (records and
// nested objects are maps); callers comparing two whole records should
// pass their decoded map forms.
func Diff(prev, next map[string]any) ObjectDiff {
	out := diffObject(prev, next)
	if out.IsEmpty() {
		return nil
	}
	return out
}

func diffObject(prev, next map[string]any) ObjectDiff {
	out := ObjectDiff{}
	for k, pv := range prev {
		nv, ok := next[k]
		if !ok {
			out[k] = ValueOp{Kind: Delete}
			continue
		}
		if op, changed := diffValue(pv, nv); changed {
			out[k] = op
		}
	}
	for k, nv := range next {
		if _, ok := prev[k]; ok {
			continue
		}
		out[k] = ValueOp{Kind: Put, Value: nv}
	}
	return out
}

// diffValue returns the operation needed to turn pv into nv, and whether
// they differ at all.
func diffValue(pv, nv any) (ValueOp, bool) {
	if Equal(pv, nv) {
		return ValueOp{}, false
	}

	pm, pIsMap := pv.(map[string]any)
	nm, nIsMap := nv.(map[string]any)
	if pIsMap && nIsMap {
		sub := diffObject(pm, nm)
		return ValueOp{Kind: Patch, Object: sub}, true
	}

	pa, pIsArr := pv.([]any)
	na, nIsArr := nv.([]any)
	if pIsArr && nIsArr {
		return diffArray(pa, na), true
	}

	return ValueOp{Kind: Put, Value: nv}, true
}

func diffArray(prev, next []any) ValueOp {
	// Append: next is prev plus a tail, offset == len(prev).
	if len(next) > len(prev) && arrayHasPrefix(next, prev) {
		tail := make([]any, len(next)-len(prev))
		copy(tail, next[len(prev):])
		return ValueOp{Kind: Append, Values: tail, Offset: len(prev)}
	}

	if len(prev) == len(next) && len(prev) > 0 {
		changed := 0
		for i := range prev {
			if !Equal(prev[i], next[i]) {
				changed++
			}
		}
		if float64(changed)/float64(len(prev)) <= arrayPatchThreshold {
			obj := ObjectDiff{}
			for i := range prev {
				if Equal(prev[i], next[i]) {
					continue
				}
				obj[indexKey(i)] = ValueOp{Kind: Put, Value: next[i]}
			}
			return ValueOp{Kind: Patch, Object: obj}
		}
	}

	return ValueOp{Kind: Put, Value: anySlice(next)}
}

func arrayHasPrefix(next, prefix []any) bool {
	for i := range prefix {
		if !Equal(next[i], prefix[i]) {
			return false
		}
	}
	return true
}

func anySlice(v []any) []any {
	out := make([]any, len(v))
	copy(out, v)
	return out
}
