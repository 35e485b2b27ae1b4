// Package wire implements the bidirectional message grammar: framing,
// chunked reassembly, and the JSON (de)serialization of record- and
// value-level diff operations. See spec §4.1 and §6.
package wire

import (
	"encoding/json"
	"fmt"

	"odin-sync/internal/diff"
	"odin-sync/internal/record"
)

// RecordOpKind discriminates the three record-level operations a push or
// patch message can carry for a given record id.
type RecordOpKind int

const (
	// OpPut replaces or creates a record wholesale.
	OpPut RecordOpKind = iota
	// OpPatch applies a structural diff to an existing record.
	OpPatch
	// OpRemove deletes a record.
	OpRemove
)

// RecordOp is one entry in a diff map: {id: record_op}.
type RecordOp struct {
	Kind   RecordOpKind
	Record record.Record   // OpPut
	Diff   diff.ObjectDiff // OpPatch
}

// DiffMap is the wire form of {id: record_op}, keyed by record id.
type DiffMap map[string]RecordOp

// MarshalJSON encodes a RecordOp as ["put", record] | ["patch", diff] | ["remove"].
func (op RecordOp) MarshalJSON() ([]byte, error) {
	switch op.Kind {
	case OpPut:
		return json.Marshal([2]any{"put", op.Record})
	case OpPatch:
		return json.Marshal([2]any{"patch", op.Diff})
	case OpRemove:
		return json.Marshal([1]any{"remove"})
	default:
		return nil, fmt.Errorf("wire: marshal record op: unknown kind %d", op.Kind)
	}
}

// UnmarshalJSON decodes a tagged-tuple record op.
func (op *RecordOp) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("wire: unmarshal record op: %w", err)
	}
	if len(tuple) == 0 {
		return fmt.Errorf("wire: unmarshal record op: empty tuple")
	}
	var tag string
	if err := json.Unmarshal(tuple[0], &tag); err != nil {
		return fmt.Errorf("wire: unmarshal record op tag: %w", err)
	}

	switch tag {
	case "put":
		if len(tuple) != 2 {
			return fmt.Errorf("wire: put op wants 2 elements, got %d", len(tuple))
		}
		var r record.Record
		if err := json.Unmarshal(tuple[1], &r); err != nil {
			return fmt.Errorf("wire: unmarshal put record: %w", err)
		}
		*op = RecordOp{Kind: OpPut, Record: r}
	case "patch":
		if len(tuple) != 2 {
			return fmt.Errorf("wire: patch op wants 2 elements, got %d", len(tuple))
		}
		var d diff.ObjectDiff
		if err := json.Unmarshal(tuple[1], &d); err != nil {
			return fmt.Errorf("wire: unmarshal patch diff: %w", err)
		}
		*op = RecordOp{Kind: OpPatch, Diff: d}
	case "remove":
		*op = RecordOp{Kind: OpRemove}
	default:
		return fmt.Errorf("wire: unmarshal record op: unknown tag %q", tag)
	}
	return nil
}
