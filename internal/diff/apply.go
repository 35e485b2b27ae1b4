package diff

import "strconv"

func indexKey(i int) string { return strconv.Itoa(i) }

// Apply applies an ObjectDiff to value, returning the result. It never
// mutates value. An empty diff returns value itself; otherwise the result
// is a fresh copy even when no op in the diff took effect, so use Equal
// rather than identity to detect a no-op after Apply.
//
// Per spec §4.4: an Append whose offset doesn't match the target array's
// current length is silently dropped. A Patch targeting a non-object (or
// non-array, for per-index array patches) is silently dropped.
func Apply(value any, d ObjectDiff) any {
	if d.IsEmpty() {
		return value
	}

	m, isMap := value.(map[string]any)
	if isMap {
		return applyObject(m, d)
	}

	// Not a map: only meaningful if value is an array and d is a
	// per-index array patch (diffArray emits this shape for same-length
	// arrays with few changed indices).
	if arr, ok := value.([]any); ok {
		return applyArrayPatch(arr, d)
	}

	return value
}

func applyObject(m map[string]any, d ObjectDiff) map[string]any {
	out := make(map[string]any, len(m)+len(d))
	for k, v := range m {
		out[k] = v
	}

	for k, op := range d {
		switch op.Kind {
		case Put:
			out[k] = op.Value
		case Delete:
			delete(out, k)
		case Append:
			cur, _ := out[k].([]any)
			if len(cur) != op.Offset {
				continue // dropped: offset mismatch
			}
			next := make([]any, 0, len(cur)+len(op.Values))
			next = append(next, cur...)
			next = append(next, op.Values...)
			out[k] = next
		case Patch:
			cur, ok := out[k]
			if !ok {
				continue // dropped: nothing to patch
			}
			out[k] = Apply(cur, op.Object)
		}
	}
	return out
}

// applyArrayPatch applies a per-index patch (keys are decimal string
// indices) to an array. Any key that isn't a valid in-range index, or any
// op that isn't Put, is silently dropped.
func applyArrayPatch(arr []any, d ObjectDiff) []any {
	out := make([]any, len(arr))
	copy(out, arr)
	for k, op := range d {
		if op.Kind != Put {
			continue
		}
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 || idx >= len(out) {
			continue
		}
		out[idx] = op.Value
	}
	return out
}
