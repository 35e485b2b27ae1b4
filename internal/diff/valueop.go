package diff

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the four value-level operations the wire protocol
// supports inside an object diff. See spec §3 "Diff Operations".
type Kind int

const (
	// Put sets a key to a value, creating or replacing it.
	Put Kind = iota
	// Delete removes a key.
	Delete
	// Append extends an array, valid only when the array's current length
	// equals Offset.
	Append
	// Patch recurses into a nested object.
	Patch
)

func (k Kind) String() string {
	switch k {
	case Put:
		return "put"
	case Delete:
		return "delete"
	case Append:
		return "append"
	case Patch:
		return "patch"
	default:
		return "unknown"
	}
}

// ValueOp is one operation inside an ObjectDiff.
type ValueOp struct {
	Kind   Kind
	Value  any        // Put
	Values []any      // Append
	Offset int        // Append
	Object ObjectDiff // Patch
}

// ObjectDiff is a mapping from key to the operation applied to that key.
// Use a plain Go map; iteration order never affects the contract (Equal
// and Apply are both order-independent), but json.Marshal sorts map keys
// so wire output is deterministic regardless.
type ObjectDiff map[string]ValueOp

// IsEmpty reports whether the diff carries no operations.
func (d ObjectDiff) IsEmpty() bool { return len(d) == 0 }

// MarshalJSON encodes a ValueOp as the tagged tuple the wire protocol
// expects: ["put", v] | ["delete"] | ["append", [v...], offset] | ["patch", diff].
func (v ValueOp) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Put:
		return json.Marshal([2]any{"put", v.Value})
	case Delete:
		return json.Marshal([1]any{"delete"})
	case Append:
		values := v.Values
		if values == nil {
			values = []any{}
		}
		return json.Marshal([3]any{"append", values, v.Offset})
	case Patch:
		return json.Marshal([2]any{"patch", v.Object})
	default:
		return nil, fmt.Errorf("diff: marshal value op: unknown kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes a tagged-tuple value op.
func (v *ValueOp) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("diff: unmarshal value op: %w", err)
	}
	if len(tuple) == 0 {
		return fmt.Errorf("diff: unmarshal value op: empty tuple")
	}
	var tag string
	if err := json.Unmarshal(tuple[0], &tag); err != nil {
		return fmt.Errorf("diff: unmarshal value op tag: %w", err)
	}

	switch tag {
	case "put":
		if len(tuple) != 2 {
			return fmt.Errorf("diff: put op wants 2 elements, got %d", len(tuple))
		}
		var val any
		if err := json.Unmarshal(tuple[1], &val); err != nil {
			return fmt.Errorf("diff: unmarshal put value: %w", err)
		}
		*v = ValueOp{Kind: Put, Value: val}
	case "delete":
		*v = ValueOp{Kind: Delete}
	case "append":
		if len(tuple) != 3 {
			return fmt.Errorf("diff: append op wants 3 elements, got %d", len(tuple))
		}
		var values []any
		if err := json.Unmarshal(tuple[1], &values); err != nil {
			return fmt.Errorf("diff: unmarshal append values: %w", err)
		}
		var offset int
		if err := json.Unmarshal(tuple[2], &offset); err != nil {
			return fmt.Errorf("diff: unmarshal append offset: %w", err)
		}
		*v = ValueOp{Kind: Append, Values: values, Offset: offset}
	case "patch":
		if len(tuple) != 2 {
			return fmt.Errorf("diff: patch op wants 2 elements, got %d", len(tuple))
		}
		var obj ObjectDiff
		if err := json.Unmarshal(tuple[1], &obj); err != nil {
			return fmt.Errorf("diff: unmarshal patch object: %w", err)
		}
		*v = ValueOp{Kind: Patch, Object: obj}
	default:
		return fmt.Errorf("diff: unmarshal value op: unknown tag %q", tag)
	}
	return nil
}
