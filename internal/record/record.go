// Package record defines the room's record universe: a JSON-shaped value
// keyed by record-id, discriminated by typeName (and, for shapes,
// bindings, and assets, an inner type tag). See spec §3 "Data Model".
package record

import (
	"fmt"
	"strings"
)

// Record is one entry in the room's document map. It is intentionally a
// loosely-typed JSON object rather than a Go struct per variant: the
// number of shape/binding/asset variants and their per-variant prop sets
// is large enough that a "JSON value + per-type validator" pattern is the
// right abstraction, per spec §9 "Dynamic typing".
type Record map[string]any

// ID returns the record's id field, or "" if absent or not a string.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// TypeName returns the record's typeName field, or "" if absent.
func (r Record) TypeName() string {
	t, _ := r["typeName"].(string)
	return t
}

// InnerType returns the record's inner `type` tag (used by shape,
// binding, and asset records to discriminate variants), or "" if absent.
func (r Record) InnerType() string {
	t, _ := r["type"].(string)
	return t
}

// Clone returns a deep copy of r so callers can mutate the result without
// aliasing the original record's nested maps/slices.
func (r Record) Clone() Record {
	return cloneValue(map[string]any(r)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// TypeNameFromID extracts the typeName prefix of a record-id of the form
// "<typeName>:<opaque>". It returns an error if id has no colon.
func TypeNameFromID(id string) (string, error) {
	idx := strings.IndexByte(id, ':')
	if idx <= 0 {
		return "", fmt.Errorf("record: malformed id %q: missing \"typeName:\" prefix", id)
	}
	return id[:idx], nil
}

// ValidateID checks the invariant that record.id begins with
// record.typeName + ":".
func ValidateID(r Record) error {
	id := r.ID()
	typeName := r.TypeName()
	if id == "" {
		return fmt.Errorf("record: missing id")
	}
	if typeName == "" {
		return fmt.Errorf("record: missing typeName")
	}
	prefix := typeName + ":"
	if !strings.HasPrefix(id, prefix) {
		return fmt.Errorf("record: id %q does not start with typeName prefix %q", id, prefix)
	}
	return nil
}
