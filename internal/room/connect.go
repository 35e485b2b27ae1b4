package room

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"odin-sync/internal/eventbus"
	"odin-sync/internal/record"
	"odin-sync/internal/schema"
	"odin-sync/internal/session"
	"odin-sync/internal/transport"
	"odin-sync/internal/wire"
)

// AcceptSession registers a newly-opened socket as a session in
// AwaitingConnectMessage state and returns its id. The session is
// removed by the janitor if no connect message arrives within the
// room's configured StartWait.
func (r *Room) AcceptSession(sock transport.Socket) string {
	var id string
	r.exec(func(rm *Room) {
		id = uuid.NewString()
		rm.sessions[id] = session.New(id, uuid.NewString(), sock, time.Now(), rm.timers)
		rm.events.Publish(eventbus.KindSessionJoined, rm.ID, id, time.Now())
	})
	return id
}

// HandleMessage dispatches one decoded inbound frame to the matching
// handler, per spec §4.5's "Public operations: handle_message".
func (r *Room) HandleMessage(sessionID string, raw []byte) {
	r.exec(func(rm *Room) {
		sess, ok := rm.sessions[sessionID]
		if !ok {
			return // session already torn down, message raced its removal
		}
		sess.Touch(time.Now())

		msg, err := wire.DecodeClientMessage(raw)
		if err != nil {
			rm.failSession(sess, fmt.Sprintf("malformed message: %v", err))
			return
		}

		switch m := msg.(type) {
		case *wire.ConnectRequest:
			rm.handleConnect(sess, m)
		case *wire.PingRequest:
			_ = sess.Send(wire.TypePong, wire.PongReply{Type: wire.TypePong})
		case *wire.PushRequest:
			if sess.State != session.Connected {
				rm.failSession(sess, "push received before connect")
				return
			}
			if !sess.AllowPush() {
				return // over the per-session push rate limit, drop silently
			}
			rm.handlePush(sess, m)
		}
	})
}

// handleConnect implements spec §4.5 step 3: version negotiation,
// schema compatibility, hydration, and session activation.
func (r *Room) handleConnect(sess *session.Session, req *wire.ConnectRequest) {
	normalized, aliased, err := schema.NormalizeProtocolVersion(req.ProtocolVersion)
	if err != nil {
		r.rejectConnect(sess, req.ProtocolVersion, err)
		return
	}
	if aliased {
		r.logger.Info("client used legacy protocol version alias", zap.String("session", sess.ID))
	}

	if err := r.schema.CheckClientVersions(req.Schema); err != nil {
		r.rejectConnect(sess, normalized, err)
		return
	}
	if err := r.schema.CheckDownCompatible(req.Schema); err != nil {
		r.rejectConnect(sess, normalized, err)
		return
	}

	hydrationType, diff, err := r.buildHydrationDiff(req.Schema, req.LastServerClock)
	if err != nil {
		r.rejectConnect(sess, normalized, err)
		return
	}

	sess.MarkConnected(req.Schema, time.Now())

	reply := wire.ConnectReply{
		Type:             wire.TypeConnect,
		ConnectRequestID: req.ConnectRequestID,
		HydrationType:    hydrationType,
		ProtocolVersion:  normalized,
		Schema:           r.schema.Serialize(),
		ServerClock:      r.clock,
		Diff:             diff,
	}
	if err := sess.Send(wire.TypeConnect, reply); err != nil {
		r.logger.Warn("connect reply send failed", zap.String("session", sess.ID), zap.Error(err))
	}
}

// rejectConnect sends an incompatibility_error and tears the session
// down; the client is expected to close its side on receipt.
func (r *Room) rejectConnect(sess *session.Session, _ int, cause error) {
	reason := wire.ReasonInvalidOperation
	switch {
	case isErrClientTooOld(cause):
		reason = wire.ReasonClientTooOld
	case isErrServerTooOld(cause):
		reason = wire.ReasonServerTooOld
	}
	_ = sess.Send(wire.TypeIncompatibilityError, wire.IncompatibilityError{
		Type:   wire.TypeIncompatibilityError,
		Reason: reason,
	})
	r.cancelSession(sess.ID, "connect_rejected")
}

// buildHydrationDiff decides between a full resync and an incremental
// one and builds the diff that carries it, per spec glossary
// "hydration_type". wipe_all is used for a client's first-ever connect
// (last_server_clock == 0) or when the tombstone history no longer
// reaches back far enough to prove no deletions were missed; otherwise
// wipe_presence incrementally resyncs documents but always fully
// replaces presence, since a presence session from before a disconnect
// is no longer trustworthy.
func (r *Room) buildHydrationDiff(clientSchema schema.SerializedSchema, lastServerClock uint64) (wire.HydrationType, wire.DiffMap, error) {
	if lastServerClock == 0 {
		return r.wipeAllDiff(clientSchema)
	}
	removedIDs, ok := r.tombstonesSince(lastServerClock)
	if !ok {
		return r.wipeAllDiff(clientSchema)
	}

	diff := wire.DiffMap{}
	for id, e := range r.entries {
		if record.IsPresenceType(e.state.TypeName()) {
			diff[id] = wire.RecordOp{Kind: wire.OpPut}
			rec, err := r.schema.MigrateRecordDown(clientSchema, e.state)
			if err != nil {
				return "", nil, err
			}
			op := diff[id]
			op.Record = rec
			diff[id] = op
			continue
		}
		if e.lastChangedClock < lastServerClock {
			continue
		}
		rec, err := r.schema.MigrateRecordDown(clientSchema, e.state)
		if err != nil {
			return "", nil, err
		}
		diff[id] = wire.RecordOp{Kind: wire.OpPut, Record: rec}
	}
	for _, id := range removedIDs {
		diff[id] = wire.RecordOp{Kind: wire.OpRemove}
	}
	return wire.WipePresence, diff, nil
}

func (r *Room) wipeAllDiff(clientSchema schema.SerializedSchema) (wire.HydrationType, wire.DiffMap, error) {
	diff := wire.DiffMap{}
	for id, e := range r.entries {
		rec, err := r.schema.MigrateRecordDown(clientSchema, e.state)
		if err != nil {
			return "", nil, err
		}
		diff[id] = wire.RecordOp{Kind: wire.OpPut, Record: rec}
	}
	return wire.WipeAll, diff, nil
}

// cancelSession moves a Connected session to AwaitingRemoval; any other
// session (never finished connecting, or already awaiting removal) has
// its socket closed and is removed outright.
func (r *Room) cancelSession(sessionID, reason string) {
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	if sess.State != session.Connected {
		_ = sess.Socket.Close()
		delete(r.sessions, sessionID)
		return
	}
	sess.MarkAwaitingRemoval(time.Now())
	r.removePresence(sess)
	r.events.Publish(eventbus.KindSessionLeft, r.ID, sessionID, time.Now())
	r.logger.Debug("session cancelled", zap.String("session", sessionID), zap.String("reason", reason))
}

// failSession reports a fatal protocol error to the client and tears
// the session down (spec §7: protocol errors close the socket).
func (r *Room) failSession(sess *session.Session, msg string) {
	_ = sess.Send(wire.TypeError, wire.ErrorMessage{Type: wire.TypeError, Error: msg})
	r.cancelSession(sess.ID, "protocol_error")
}

func isErrClientTooOld(err error) bool { return matchesSentinel(err, schema.ErrClientTooOld) }
func isErrServerTooOld(err error) bool { return matchesSentinel(err, schema.ErrServerTooOld) }
