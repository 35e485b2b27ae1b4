package schema

import (
	"fmt"

	"odin-sync/internal/record"
)

// Builder assembles a Schema from migration sequences registered at
// startup. Migrations are not hot-reloaded; this matches the source's
// compile-time migration tables (spec §4.3).
type Builder struct {
	sequences map[string]*Sequence
	err       error
}

// NewBuilder starts a schema build.
func NewBuilder() *Builder {
	return &Builder{sequences: map[string]*Sequence{}}
}

// AddSequence registers a migration sequence. Migrations must be supplied
// in version order starting at 1 with no gaps.
func (b *Builder) AddSequence(id string, dependsOn []string, migrations ...*Migration) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.sequences[id]; exists {
		b.err = fmt.Errorf("schema: duplicate sequence id %q", id)
		return b
	}
	for i, m := range migrations {
		wantVersion := i + 1
		if m.Version != wantVersion {
			b.err = fmt.Errorf("schema: sequence %q migration %d has version %d, want %d", id, i, m.Version, wantVersion)
			return b
		}
		if m.SequenceID == "" {
			m.SequenceID = id
		}
		if m.SequenceID != id {
			b.err = fmt.Errorf("schema: sequence %q migration declares mismatched SequenceID %q", id, m.SequenceID)
			return b
		}
		if m.Scope == RecordScope && m.Up == nil {
			b.err = fmt.Errorf("schema: sequence %q migration %d: record-scope migration missing Up", id, m.Version)
			return b
		}
		if m.Scope == StoreScope && m.StoreUp == nil {
			b.err = fmt.Errorf("schema: sequence %q migration %d: store-scope migration missing StoreUp", id, m.Version)
			return b
		}
	}

	b.sequences[id] = &Sequence{ID: id, DependsOn: dependsOn, Migrations: migrations}
	return b
}

// Build validates the dependency graph and compiles the final Schema.
func (b *Builder) Build(validators *record.Registry) (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}

	order, err := toposort(b.sequences)
	if err != nil {
		return nil, err
	}

	if validators == nil {
		validators = record.NewRegistry()
	}

	return &Schema{sequences: b.sequences, order: order, Validators: validators}, nil
}
