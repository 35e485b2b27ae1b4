package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"odin-sync/internal/record"
)

// legacySnapshot is the pre-schema-versioning snapshot shape: a bare
// records map with no schema or tombstone bookkeeping at all. Rooms
// that bootstrapped before the schema engine existed can still hold
// files in this shape; FileAdapter.Load treats a file that carries
// neither a tombstones map nor a schema as this shape.
type legacySnapshot struct {
	RoomID  string                   `json:"room_id"`
	Clock   uint64                   `json:"clock"`
	Records map[string]record.Record `json:"records"`
}

// upgradeLegacySnapshot converts a legacySnapshot into the current
// Snapshot shape: document_clock starts equal to clock (legacy rooms
// never distinguished the two), there are no tombstones to recover, and
// schema is left nil. Room restore does not read Snapshot.Schema, so
// legacy records receive no record-scope migrations on load.
func upgradeLegacySnapshot(raw []byte) (*Snapshot, error) {
	var legacy legacySnapshot
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("persistence: not a legacy snapshot either: %w", err)
	}
	if legacy.Records == nil {
		return nil, fmt.Errorf("persistence: legacy snapshot missing records")
	}
	return &Snapshot{
		RoomID:        legacy.RoomID,
		Clock:         legacy.Clock,
		DocumentClock: legacy.Clock,
		Records:       legacy.Records,
		Tombstones:    map[string]uint64{},
		Schema:        nil,
		SavedAt:       time.Now(),
	}, nil
}
