package room

import (
	"go.uber.org/zap"

	"odin-sync/internal/schema"
	"odin-sync/internal/session"
	"odin-sync/internal/wire"
)

// broadcastPatch sends diff to every connected session except except,
// each migrated down to that session's own declared schema version.
// Patch messages are debounced per spec §4.2, so a burst of pushes in
// one frame interval coalesces into a single outbound frame per peer.
func (r *Room) broadcastPatch(diff wire.DiffMap, except *session.Session) {
	if len(diff) == 0 {
		return
	}
	for _, sess := range r.sessions {
		if sess == except || sess.State != session.Connected {
			continue
		}
		peerDiff, err := r.diffForClientSchema(diff, sess.ClientSchema)
		if err != nil {
			r.logger.Warn("broadcast migrate-down failed", zap.String("session", sess.ID), zap.Error(err))
			continue
		}
		msg := wire.PatchMessage{Type: wire.TypePatch, Diff: peerDiff, ServerClock: r.clock}
		if err := sess.Send(wire.TypePatch, msg); err != nil {
			r.logger.Warn("broadcast send failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}
}

// diffForClientSchema re-expresses a server-schema diff in a peer's
// declared schema. Put/Patch ops carry a full post-migration record so
// the peer never has to reason about a partially-migrated patch; Remove
// ops pass through unchanged.
func (r *Room) diffForClientSchema(diff wire.DiffMap, clientSchema schema.SerializedSchema) (wire.DiffMap, error) {
	out := make(wire.DiffMap, len(diff))
	for id, op := range diff {
		switch op.Kind {
		case wire.OpRemove:
			out[id] = op
		default:
			e, ok := r.entries[id]
			if !ok {
				continue // removed again before this broadcast went out
			}
			rec, err := r.schema.MigrateRecordDown(clientSchema, e.state)
			if err != nil {
				return nil, err
			}
			out[id] = wire.RecordOp{Kind: wire.OpPut, Record: rec}
		}
	}
	return out, nil
}
