package room

import (
	"fmt"

	"odin-sync/internal/diff"
	"odin-sync/internal/record"
	"odin-sync/internal/session"
	"odin-sync/internal/wire"
)

// handlePush implements spec §4.5 "push": apply an atomic batch of
// record operations (document diff plus an optional presence update),
// validating and migrating every touched record before anything
// commits. A single invalid record or operation discards the whole
// push; a conflicting one triggers a rebase reply instead of a commit.
func (r *Room) handlePush(sess *session.Session, req *wire.PushRequest) {
	staged, conflict, err := r.stagePush(sess, req)
	if err != nil {
		r.metrics.InvalidOperations.Inc()
		r.failSession(sess, fmt.Sprintf("invalid push: %v", err))
		return
	}

	if conflict != nil {
		r.metrics.PushesRebased.Inc()
		_ = sess.Send(wire.TypePushResult, wire.PushResult{
			Type:        wire.TypePushResult,
			ClientClock: req.ClientClock,
			ServerClock: r.clock,
			Action:      wire.PushResultAction{Kind: wire.ActionRebase, RebaseDiff: conflict},
		})
		return
	}

	if len(staged) == 0 {
		r.metrics.PushesDiscarded.Inc()
		_ = sess.Send(wire.TypePushResult, wire.PushResult{
			Type:        wire.TypePushResult,
			ClientClock: req.ClientClock,
			ServerClock: r.clock,
			Action:      wire.PushResultAction{Kind: wire.ActionDiscard},
		})
		return
	}

	serverDiff := r.commitPush(staged)
	r.metrics.PushesCommitted.Inc()
	r.requestPersist()

	_ = sess.Send(wire.TypePushResult, wire.PushResult{
		Type:        wire.TypePushResult,
		ClientClock: req.ClientClock,
		ServerClock: r.clock,
		Action:      wire.PushResultAction{Kind: wire.ActionCommit},
	})
	r.broadcastPatch(serverDiff, sess)
}

// stagedChange is one record's resolved before/after state, ready to
// commit once the whole push has validated cleanly.
type stagedChange struct {
	id     string
	remove bool
	next   record.Record
}

// stagePush resolves every operation in req.Diff (plus req.Presence)
// against current server state without mutating it. Every op applies
// directly to the *live* record, the same record two concurrent pushes
// would both be applying to — client_clock is never used to gate this
// (spec §4.5 only ever echoes it back in push_result). stagePush returns
// a conflict diff instead of staged changes only when an op would not
// actually take effect against the live record: an Append whose offset
// no longer matches the target array's current length, or a Patch aimed
// at a key that's no longer there to patch into. diff.Apply silently
// drops both rather than erroring, so without this check the client would
// never learn its edit was lost. Other ops Apply drops (a Patch aimed at
// a non-object value, or a nested Append) are not detected here.
func (r *Room) stagePush(sess *session.Session, req *wire.PushRequest) (staged []stagedChange, conflict wire.DiffMap, err error) {
	for id, op := range req.Diff {
		change, conflicted, err := r.resolveOp(sess, id, op, true)
		if err != nil {
			return nil, nil, err
		}
		if conflicted {
			conflict = r.conflictDiff(req.Diff)
			return nil, conflict, nil
		}
		if change != nil {
			staged = append(staged, *change)
		}
	}

	if req.Presence != nil {
		presenceID := "instance_presence:" + sess.PresenceID
		change, _, err := r.resolveOp(sess, presenceID, *req.Presence, false)
		if err != nil {
			return nil, nil, err
		}
		if change != nil {
			staged = append(staged, *change)
		}
	}

	return staged, nil, nil
}

// resolveOp resolves a single record operation against the current
// server-schema record, returning the staged next state. checkConflict
// gates the concurrent-edit check: presence records are owned
// exclusively by the writing session so they're never subject to it.
func (r *Room) resolveOp(sess *session.Session, id string, op wire.RecordOp, checkConflict bool) (*stagedChange, bool, error) {
	e, exists := r.entries[id]

	if op.Kind == wire.OpRemove {
		if !exists {
			return nil, false, nil // already gone, nothing to do
		}
		return &stagedChange{id: id, remove: true}, false, nil
	}

	var prevClient record.Record
	if exists {
		down, err := r.schema.MigrateRecordDown(sess.ClientSchema, e.state)
		if err != nil {
			return nil, false, fmt.Errorf("migrate down %s: %w", id, err)
		}
		prevClient = down
	}

	var nextClient record.Record
	switch op.Kind {
	case wire.OpPut:
		nextClient = op.Record
	case wire.OpPatch:
		if prevClient == nil {
			return nil, false, fmt.Errorf("%w: patch for unknown record %s", ErrInvalidOperation, id)
		}
		if checkConflict && !patchWouldStick(map[string]any(prevClient), op.Diff) {
			return nil, true, nil
		}
		applied := diff.Apply(map[string]any(prevClient), op.Diff)
		m, ok := applied.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("%w: patch for %s did not yield an object", ErrInvalidOperation, id)
		}
		nextClient = record.Record(m)
	default:
		return nil, false, fmt.Errorf("%w: unknown op kind for %s", ErrInvalidOperation, id)
	}

	nextServer, err := r.schema.MigrateRecordUp(sess.ClientSchema, nextClient)
	if err != nil {
		return nil, false, fmt.Errorf("migrate up %s: %w", id, err)
	}
	if err := record.ValidateID(nextServer); err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidRecord, err)
	}
	if err := r.schema.Validators.Validate(nextServer); err != nil {
		return nil, false, fmt.Errorf("%w: validate %s: %s", ErrInvalidRecord, id, err)
	}

	if exists && diff.Equal(map[string]any(e.state), map[string]any(nextServer)) {
		return nil, false, nil // true no-op, nothing to stage
	}
	return &stagedChange{id: id, next: nextServer}, false, nil
}

// patchWouldStick reports whether every top-level operation in d would
// actually take effect if applied to base, matching diff.Apply's own
// silent-drop rules: an Append only lands when the target array's
// current length equals its offset, and a Patch only lands when the
// target key already exists to recurse into. Put and Delete always
// land regardless of base, so they never signal a conflict.
func patchWouldStick(base map[string]any, d diff.ObjectDiff) bool {
	for k, op := range d {
		switch op.Kind {
		case diff.Append:
			cur, _ := base[k].([]any)
			if len(cur) != op.Offset {
				return false
			}
		case diff.Patch:
			if _, ok := base[k]; !ok {
				return false
			}
		}
	}
	return true
}

// conflictDiff reports the server's authoritative current state for
// every record the client attempted to touch, so the client can rebase
// its optimistic local changes on top of it.
func (r *Room) conflictDiff(reqDiff wire.DiffMap) wire.DiffMap {
	out := make(wire.DiffMap, len(reqDiff))
	for id := range reqDiff {
		e, ok := r.entries[id]
		if !ok {
			out[id] = wire.RecordOp{Kind: wire.OpRemove}
			continue
		}
		out[id] = wire.RecordOp{Kind: wire.OpPut, Record: e.state}
	}
	return out
}

// commitPush applies staged changes to server state, advances the
// clocks, and returns the server-schema diff to broadcast.
func (r *Room) commitPush(staged []stagedChange) wire.DiffMap {
	r.clock++
	serverDiff := wire.DiffMap{}
	touchedDocument := false

	for _, ch := range staged {
		if ch.remove {
			prev, ok := r.entries[ch.id]
			if !ok {
				continue
			}
			r.recordTombstone(ch.id, r.clock)
			serverDiff[ch.id] = wire.RecordOp{Kind: wire.OpRemove}
			if record.IsDocumentType(prev.state.TypeName()) {
				touchedDocument = true
			}
			continue
		}

		r.putEntry(ch.next, r.clock)
		serverDiff[ch.id] = wire.RecordOp{Kind: wire.OpPut, Record: ch.next}
		if record.IsDocumentType(ch.next.TypeName()) {
			touchedDocument = true
		}
	}

	if touchedDocument {
		r.documentClock = r.clock
	}
	return serverDiff
}

// removePresence clears a departing session's own presence record (if
// any) and broadcasts its removal.
func (r *Room) removePresence(sess *session.Session) {
	id := "instance_presence:" + sess.PresenceID
	if _, ok := r.entries[id]; !ok {
		return
	}
	r.clock++
	r.recordTombstone(id, r.clock)
	r.broadcastPatch(wire.DiffMap{id: {Kind: wire.OpRemove}}, sess)
}
