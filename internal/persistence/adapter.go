// Package persistence implements the snapshot load/save side of spec §4.6
// (Persistence Adapter): a throttled, best-effort writer plus two
// concrete backends, one Redis-backed and one local-file-backed, both
// grounded on the wider example pack rather than on the chosen teacher
// (which has no persistence layer of its own).
package persistence

import (
	"context"
	"errors"
	"time"

	"odin-sync/internal/record"
)

// ErrNotFound is returned by Adapter.Load when no snapshot exists yet for
// a room — a fresh room, not a failure.
var ErrNotFound = errors.New("persistence: snapshot not found")

// Snapshot is the durable representation of a room's document-scope
// state (spec §4.6: "persists only document-scope records; presence and
// session state never survive a restart").
type Snapshot struct {
	RoomID        string                    `json:"room_id"`
	Clock         uint64                    `json:"clock"`
	DocumentClock uint64                    `json:"document_clock"`
	Records       map[string]record.Record  `json:"records"`
	Tombstones    map[string]uint64         `json:"tombstones"`
	Schema        map[string]int            `json:"schema"`
	SavedAt       time.Time                 `json:"saved_at"`
}

// Adapter is the minimal durable-storage contract a Room needs. Redis
// and file backends below both implement it.
type Adapter interface {
	Load(ctx context.Context, roomID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}
