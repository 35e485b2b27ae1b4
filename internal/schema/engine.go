package schema

import (
	"fmt"

	"odin-sync/internal/record"
)

// MinProtocolVersion is the lowest protocol version this server accepts.
const MinProtocolVersion = 6

// CurrentProtocolVersion is the protocol version this server speaks.
const CurrentProtocolVersion = 6

// legacyProtocolVersion is the provisional "5 -> 6" alias mentioned in
// spec §9 "Open question": whether version-5 clients still exist in the
// wild is unclear, so the alias is preserved but the caller should log
// when it's exercised.
const legacyProtocolVersion = 5

// NormalizeProtocolVersion maps the legacy version-5 alias to 6 and
// validates the result against the server's supported range. aliased
// reports whether the legacy alias was applied, so callers can log it.
func NormalizeProtocolVersion(v int) (normalized int, aliased bool, err error) {
	if v == legacyProtocolVersion {
		return CurrentProtocolVersion, true, nil
	}
	if v < MinProtocolVersion {
		return 0, false, fmt.Errorf("%w: protocol version %d below minimum %d", ErrClientTooOld, v, MinProtocolVersion)
	}
	if v > CurrentProtocolVersion {
		return 0, false, fmt.Errorf("%w: protocol version %d above current %d", ErrServerTooOld, v, CurrentProtocolVersion)
	}
	return v, false, nil
}

// CheckClientVersions verifies the symmetric-reasoning direction for the
// server: if the client declares a sequence the server has never heard
// of, or a version higher than the server's latest, the server is too
// old to serve this client.
func (s *Schema) CheckClientVersions(client SerializedSchema) error {
	for id, v := range client {
		seq, ok := s.sequence(id)
		if !ok {
			return fmt.Errorf("%w: unknown sequence %q", ErrServerTooOld, id)
		}
		if v > seq.latestVersion() {
			return fmt.Errorf("%w: sequence %q version %d exceeds server's %d", ErrServerTooOld, id, v, seq.latestVersion())
		}
	}
	return nil
}

// CheckDownCompatible verifies every migration newer than the client's
// declared version, across every sequence, has a working (non-retired)
// Down function and is not store-scoped. Called at connect time (spec
// §4.5 step 3) so a later egress migrate-down can never fail outright.
func (s *Schema) CheckDownCompatible(client SerializedSchema) error {
	for _, id := range s.order {
		seq := s.sequences[id]
		from := client[id]
		for _, m := range seq.Migrations {
			if m.Version <= from {
				continue
			}
			if m.Scope == StoreScope {
				return fmt.Errorf("%w: sequence %q migration %d is store-scoped, cannot migrate down per-client", ErrClientTooOld, id, m.Version)
			}
			if !m.hasWorkingDown() {
				return fmt.Errorf("%w: sequence %q migration %d has no working down migration", ErrClientTooOld, id, m.Version)
			}
		}
	}
	return nil
}

// MigrateRecordUp applies every pending record-scope migration (version
// greater than the client's declared version, in sequence-dependency then
// version order) whose Filter matches r. If it encounters a pending
// store-scope migration that would apply to this record's sequence, the
// client cannot be served at the record level and ErrClientTooOld is
// returned (store-scope migrations run separately over the whole
// document map, see MigrateStoreUp).
func (s *Schema) MigrateRecordUp(client SerializedSchema, r record.Record) (record.Record, error) {
	cur := r
	for _, id := range s.order {
		seq := s.sequences[id]
		from := client[id]
		for _, m := range seq.Migrations {
			if m.Version <= from {
				continue
			}
			if m.Filter != nil && !m.Filter(cur) {
				continue
			}
			if m.Scope == StoreScope {
				return nil, fmt.Errorf("%w: sequence %q migration %d is store-scoped and missing on client", ErrClientTooOld, id, m.Version)
			}
			next, err := m.Up(cur)
			if err != nil {
				return nil, fmt.Errorf("schema: migration %s up: %w", m.ID(), err)
			}
			cur = next
		}
	}
	return cur, nil
}

// MigrateRecordDown reverses every migration strictly newer than the
// client's declared version, in reverse (newest-first) order, across
// sequences in reverse dependency order. Any migration in range lacking a
// working Down yields ErrClientTooOld — callers should have already ruled
// this out via CheckDownCompatible at connect time.
func (s *Schema) MigrateRecordDown(client SerializedSchema, r record.Record) (record.Record, error) {
	cur := r
	for i := len(s.order) - 1; i >= 0; i-- {
		seq := s.sequences[s.order[i]]
		from := client[seq.ID]
		for j := len(seq.Migrations) - 1; j >= 0; j-- {
			m := seq.Migrations[j]
			if m.Version <= from {
				continue
			}
			if m.Filter != nil && !m.Filter(cur) {
				continue
			}
			if !m.hasWorkingDown() {
				return nil, fmt.Errorf("%w: sequence %q migration %d has no working down migration", ErrClientTooOld, seq.ID, m.Version)
			}
			next, err := m.Down(cur)
			if err != nil {
				return nil, fmt.Errorf("schema: migration %s down: %w", m.ID(), err)
			}
			cur = next
		}
	}
	return cur, nil
}

// MigrateStoreUp applies every store-scope migration, in sequence order,
// over the whole document map. Store-scope migrations are "retroactive"
// (spec glossary): they run unconditionally against the full store
// rather than being gated per-client, which is why they're applied at
// snapshot load / bootstrap time rather than per-push. See DESIGN.md for
// the rationale.
func (s *Schema) MigrateStoreUp(documents map[string]record.Record) (map[string]record.Record, error) {
	cur := documents
	for _, id := range s.order {
		seq := s.sequences[id]
		for _, m := range seq.Migrations {
			if m.Scope != StoreScope {
				continue
			}
			next, err := m.StoreUp(cur)
			if err != nil {
				return nil, fmt.Errorf("schema: store migration %s: %w", m.ID(), err)
			}
			cur = next
		}
	}
	return cur, nil
}
