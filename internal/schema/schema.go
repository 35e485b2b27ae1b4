// Package schema implements the versioned migration engine that lets a
// room serve clients speaking different schema versions simultaneously.
// See spec §4.3 "Schema & Migration Engine".
package schema

import (
	"fmt"

	"odin-sync/internal/record"
)

// MigrationScope distinguishes migrations that transform a single record
// from migrations that transform the whole record store.
type MigrationScope int

const (
	// RecordScope migrations transform one record at a time.
	RecordScope MigrationScope = iota
	// StoreScope migrations transform the entire record map, used for
	// cross-record refactors (e.g. extracting embedded references into
	// separate binding records).
	StoreScope
)

// UpFunc transforms a record from the version below it to this migration's
// version.
type UpFunc func(record.Record) (record.Record, error)

// DownFunc reverses an UpFunc. Absent for migrations that cannot be
// reversed (retroactive, lossy, or "retired").
type DownFunc func(record.Record) (record.Record, error)

// StoreUpFunc transforms the whole document map.
type StoreUpFunc func(map[string]record.Record) (map[string]record.Record, error)

// Filter decides whether a migration applies to a given record (e.g. only
// shapes with inner type "arrow"). A nil Filter applies to every record.
type Filter func(record.Record) bool

// Migration is one versioned step within a Sequence.
type Migration struct {
	SequenceID string
	Version    int
	Scope      MigrationScope
	Filter     Filter

	Up       UpFunc
	Down     DownFunc
	StoreUp  StoreUpFunc
	Retired  bool // Down exists but is deliberately disabled; treated as absent.
}

// ID returns the migration's fully qualified id, "<sequence_id>/<version>".
func (m *Migration) ID() string {
	return fmt.Sprintf("%s/%d", m.SequenceID, m.Version)
}

func (m *Migration) hasWorkingDown() bool {
	return m.Down != nil && !m.Retired
}

// Sequence is an ordered, 1-indexed chain of migrations sharing a
// sequence id.
type Sequence struct {
	ID         string
	DependsOn  []string
	Migrations []*Migration // Migrations[i].Version == i+1
}

func (s *Sequence) latestVersion() int { return len(s.Migrations) }

// SerializedSchema is the wire/storage form of a client or server's
// declared schema: sequence id -> version known.
type SerializedSchema map[string]int

// Clone returns a copy safe for independent mutation.
func (s SerializedSchema) Clone() SerializedSchema {
	out := make(SerializedSchema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal reports whether two serialized schemas declare identical versions
// for every sequence.
func (s SerializedSchema) Equal(other SerializedSchema) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		if other[k] != v {
			return false
		}
	}
	return true
}

// Schema is the compiled, ready-to-use migration engine: a validator
// registry plus every migration sequence, in dependency order.
type Schema struct {
	sequences     map[string]*Sequence
	order         []string // toposorted sequence ids
	Validators    *record.Registry
}

// Serialize returns the server's current schema descriptor: every
// sequence at its latest version.
func (s *Schema) Serialize() SerializedSchema {
	out := make(SerializedSchema, len(s.sequences))
	for id, seq := range s.sequences {
		out[id] = seq.latestVersion()
	}
	return out
}

// SequenceIDs returns the toposorted sequence order used for migration
// application (dependencies before dependents).
func (s *Schema) SequenceIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// sequence looks up a sequence by id.
func (s *Schema) sequence(id string) (*Sequence, bool) {
	seq, ok := s.sequences[id]
	return seq, ok
}
