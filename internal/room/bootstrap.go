package room

import "odin-sync/internal/record"

// bootstrapDefaults seeds a brand-new room with the minimal document
// graph a client expects on first connect: one document record and one
// page record, per spec §3 "Record Lifecycle: created... on room
// bootstrap of default records".
func (r *Room) bootstrapDefaults() {
	docID := "document:document"
	pageID := "page:page"

	doc := record.Record{
		"id":       docID,
		"typeName": "document",
		"gridSize": 10.0,
	}
	page := record.Record{
		"id":       pageID,
		"typeName": "page",
		"name":     "Page 1",
		"index":    "a1",
	}

	r.clock = 1
	r.documentClock = 1
	r.putEntry(doc, r.clock)
	r.putEntry(page, r.clock)
}

// putEntry inserts or overwrites a live entry, independent of the
// tombstone index (callers are responsible for clearing any tombstone
// for the same id first if resurrecting a previously removed record).
func (r *Room) putEntry(rec record.Record, clock uint64) {
	r.entries[rec.ID()] = &entry{state: rec, lastChangedClock: clock}
}
