package room

import "sort"

// recordTombstone marks id as removed at the given clock and drops its
// live entry. Tombstones are pruned once the count exceeds the room's
// configured cap so the index can't grow unbounded in a long-lived,
// high-churn room (spec §3 "Tombstone cap").
func (r *Room) recordTombstone(id string, clock uint64) {
	delete(r.entries, id)
	r.tombstones[id] = clock
	if len(r.tombstones) > r.maxTombstones {
		r.pruneTombstones()
	}
}

// pruneTombstones discards the oldest tombstones once the cap is
// exceeded, leaving maxTombstones - tombstonePruneBuffer of them, and raises
// tombstoneHistoryStartsAtClock to the clock of the oldest surviving
// entry. A reconnecting client whose last_server_clock predates that
// boundary can no longer be served an incremental diff — the server
// can't prove no record was deleted in the gap — and must be hydrated
// with wipe_all instead.
func (r *Room) pruneTombstones() {
	type kv struct {
		id    string
		clock uint64
	}
	all := make([]kv, 0, len(r.tombstones))
	for id, c := range r.tombstones {
		all = append(all, kv{id, c})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].clock < all[j].clock })

	toDrop := len(r.tombstones) - r.maxTombstones + r.tombstonePruneBuffer
	if toDrop > len(all) {
		toDrop = len(all)
	}
	for i := 0; i < toDrop; i++ {
		delete(r.tombstones, all[i].id)
	}
	if toDrop < len(all) {
		r.tombstoneHistoryStartsAtClock = all[toDrop].clock
	} else if len(all) > 0 {
		r.tombstoneHistoryStartsAtClock = all[len(all)-1].clock
	}
}

// tombstonesSince returns every tombstone recorded at or after
// sinceClock, or ok=false if sinceClock predates the surviving
// tombstone history (meaning the caller must fall back to wipe_all).
func (r *Room) tombstonesSince(sinceClock uint64) (ids []string, ok bool) {
	if sinceClock < r.tombstoneHistoryStartsAtClock {
		return nil, false
	}
	for id, clock := range r.tombstones {
		if clock >= sinceClock {
			ids = append(ids, id)
		}
	}
	return ids, true
}
