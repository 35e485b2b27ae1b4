package room

import (
	"time"

	"go.uber.org/zap"
)

// runJanitorTick sweeps every session for a timer expiry: connect
// timeout, idle timeout, or removal grace window. Runs on the room's
// executor goroutine, so it never races session mutation. See spec
// §4.2 "Session State Machine" timers.
func (r *Room) runJanitorTick(now time.Time) {
	for id, sess := range r.sessions {
		switch {
		case sess.ConnectExpired(now):
			r.failSession(sess, "connect timeout")
		case sess.Idle(now):
			r.cancelSession(id, "idle_timeout")
		case sess.RemovalExpired(now):
			_ = sess.Socket.Close()
			delete(r.sessions, id)
		}
	}
}

// flushExpiredDebounces flushes every session whose debounce deadline
// has passed, batching whatever accumulated in its outbox into one
// "data" envelope (spec §4.2 "Debounce").
func (r *Room) flushExpiredDebounces(now time.Time) {
	for _, sess := range r.sessions {
		deadline, armed := sess.DebounceDeadline()
		if !armed || now.Before(deadline) {
			continue
		}
		if err := sess.Flush(); err != nil {
			r.logger.Warn("debounce flush failed", zap.String("session", sess.ID), zap.Error(err))
		}
	}
}
