package room

import (
	"fmt"
	"time"

	"odin-sync/internal/persistence"
	"odin-sync/internal/record"
)

// restoreFromSnapshot seeds room state from a previously persisted
// snapshot, running every store-scope migration over its records first.
// Record-scope migrations are not applied here, and the snapshot's own
// Schema field is not consulted.
func (r *Room) restoreFromSnapshot(snap *persistence.Snapshot) error {
	migrated, err := r.schema.MigrateStoreUp(snap.Records)
	if err != nil {
		return fmt.Errorf("room: store migration on load: %w", err)
	}

	for id, rec := range migrated {
		r.entries[id] = &entry{state: rec.Clone(), lastChangedClock: snap.Clock}
	}
	for id, deletedAt := range snap.Tombstones {
		r.tombstones[id] = deletedAt
	}
	r.clock = snap.Clock
	r.documentClock = snap.DocumentClock
	if len(r.tombstones) > 0 {
		r.tombstoneHistoryStartsAtClock = snap.Clock
	}
	return nil
}

// buildSnapshot captures document-scope state as of the current clock.
// Presence and session records are deliberately excluded (spec §4.6):
// they never survive a restart.
func (r *Room) buildSnapshot() *persistence.Snapshot {
	records := make(map[string]record.Record, len(r.entries))
	for id, e := range r.entries {
		typeName := e.state.TypeName()
		if !record.IsDocumentType(typeName) {
			continue
		}
		records[id] = e.state.Clone()
	}
	tombstones := make(map[string]uint64, len(r.tombstones))
	for id, at := range r.tombstones {
		tombstones[id] = at
	}

	return &persistence.Snapshot{
		RoomID:        r.ID,
		Clock:         r.clock,
		DocumentClock: r.documentClock,
		Records:       records,
		Tombstones:    tombstones,
		Schema:        r.schema.Serialize(),
		SavedAt:       time.Now(),
	}
}

// requestPersist hands the current snapshot to the throttle, which
// coalesces it with any prior unwritten snapshot and writes at most
// once per throttle interval.
func (r *Room) requestPersist() {
	if r.throttle == nil {
		return
	}
	r.throttle.Request(r.buildSnapshot())
}

// GetSnapshot returns a defensive copy of the room's full document-scope
// state, exposed for operational tooling / tests. It round-trips
// through the room's single executor like every other operation.
func (r *Room) GetSnapshot() *persistence.Snapshot {
	var snap *persistence.Snapshot
	r.exec(func(rm *Room) { snap = rm.buildSnapshot() })
	return snap
}
