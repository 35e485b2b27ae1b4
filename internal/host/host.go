// Package host is the process-wide room registry: get-or-create a room
// by id, lazily restoring it from persistence, and evict idle rooms
// from memory. It is the "host contract" spec.md's Non-goals leave as
// an interface the transport layer is expected to provide — this is the
// in-process reference implementation, grounded on go-server-3's
// internal/session.Hub (a sharded connection registry) generalized from
// connections to rooms.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"odin-sync/internal/eventbus"
	"odin-sync/internal/metrics"
	"odin-sync/internal/persistence"
	"odin-sync/internal/room"
	"odin-sync/internal/schema"
	"odin-sync/internal/session"
)

// IdleEvictAfter is how long a room with zero sessions sits in memory
// before the sweeper evicts it, flushing any pending persistence write
// first.
const IdleEvictAfter = 5 * time.Minute

// Host owns every live Room in this process.
type Host struct {
	schema  *schema.Schema
	persist persistence.Adapter
	events  *eventbus.Bus
	metrics *metrics.Registry
	logger  *zap.Logger

	throttle             time.Duration
	timers               session.TimerConfig
	maxTombstones        int
	tombstonePruneBuffer int
	janitorPeriod        time.Duration

	mu    sync.Mutex
	rooms map[string]*entry

	stop chan struct{}
}

type entry struct {
	room       *room.Room
	idleSince  time.Time // zero while the room has ≥1 session
}

// Options configures a Host. Schema is required; everything else is
// optional and falls back to the same defaults room.Options uses.
type Options struct {
	Schema          *schema.Schema
	Persistence     persistence.Adapter
	Events          *eventbus.Bus
	Metrics         *metrics.Registry
	Logger          *zap.Logger
	PersistThrottle time.Duration

	Timers               session.TimerConfig
	MaxTombstones        int
	TombstonePruneBuffer int
	JanitorPeriod        time.Duration
}

// New constructs a Host and starts its idle-room sweeper.
func New(opts Options) (*Host, error) {
	if opts.Schema == nil {
		return nil, fmt.Errorf("host: Options.Schema is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsReg := opts.Metrics
	if metricsReg == nil {
		metricsReg = metrics.NewRegistry()
	}
	h := &Host{
		schema:               opts.Schema,
		persist:              opts.Persistence,
		events:               opts.Events,
		metrics:              metricsReg,
		logger:               logger,
		throttle:             opts.PersistThrottle,
		timers:               opts.Timers,
		maxTombstones:        opts.MaxTombstones,
		tombstonePruneBuffer: opts.TombstonePruneBuffer,
		janitorPeriod:        opts.JanitorPeriod,
		rooms:                map[string]*entry{},
		stop:                 make(chan struct{}),
	}
	go h.sweepLoop()
	return h, nil
}

// Room returns the live room for id, creating and (if a persistence
// backend is configured) restoring it on first access.
func (h *Host) Room(ctx context.Context, id string) (*room.Room, error) {
	h.mu.Lock()
	if e, ok := h.rooms[id]; ok {
		e.idleSince = time.Time{}
		h.mu.Unlock()
		return e.room, nil
	}
	h.mu.Unlock()

	var restore *persistence.Snapshot
	if h.persist != nil {
		snap, err := h.persist.Load(ctx, id)
		switch {
		case err == nil:
			restore = snap
		case err == persistence.ErrNotFound:
			// fresh room, bootstrapDefaults will run instead
		default:
			h.metrics.PersistenceErrors.Inc()
			return nil, fmt.Errorf("host: load snapshot for room %s: %w", id, err)
		}
	}

	rm, err := room.New(id, room.Options{
		Schema:               h.schema,
		Persistence:          h.persist,
		Events:               h.events,
		Metrics:              h.metrics,
		Logger:               h.logger.With(zap.String("room", id)),
		PersistThrottle:      h.throttle,
		Timers:               h.timers,
		MaxTombstones:        h.maxTombstones,
		TombstonePruneBuffer: h.tombstonePruneBuffer,
		JanitorPeriod:        h.janitorPeriod,
	}, restore)
	if err != nil {
		return nil, fmt.Errorf("host: create room %s: %w", id, err)
	}

	h.mu.Lock()
	if existing, ok := h.rooms[id]; ok {
		// Lost a race with a concurrent Room(ctx, id) call; keep the
		// winner and discard the room we just built.
		h.mu.Unlock()
		rm.Close()
		return existing.room, nil
	}
	h.rooms[id] = &entry{room: rm}
	if h.metrics != nil {
		h.metrics.RoomsActive.Set(float64(len(h.rooms)))
	}
	h.mu.Unlock()
	return rm, nil
}

// Evict closes and forgets a room immediately, regardless of whether
// it still has sessions. Used for operator-driven removal; the idle
// sweeper also calls it, after checking idleSince and the session count.
func (h *Host) Evict(id string) {
	h.mu.Lock()
	e, ok := h.rooms[id]
	if ok {
		delete(h.rooms, id)
		if h.metrics != nil {
			h.metrics.RoomsActive.Set(float64(len(h.rooms)))
		}
	}
	h.mu.Unlock()
	if ok {
		e.room.Close()
	}
}

// MarkIdle records that id currently has zero sessions, starting its
// idle-eviction countdown. The sweeper only evicts rooms marked this way,
// and nothing in this module calls MarkIdle (transport.Server does not),
// so without an outside caller rooms stay in memory until Evict or Close.
// It is purely advisory bookkeeping for the sweeper and never affects
// correctness.
func (h *Host) MarkIdle(id string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.rooms[id]; ok && e.idleSince.IsZero() {
		e.idleSince = now
	}
}

func (h *Host) sweepLoop() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			h.sweepOnce(time.Now())
		case <-h.stop:
			return
		}
	}
}

func (h *Host) sweepOnce(now time.Time) {
	var toEvict []string
	h.mu.Lock()
	for id, e := range h.rooms {
		if !e.idleSince.IsZero() && now.Sub(e.idleSince) >= IdleEvictAfter && e.room.SessionCount() == 0 {
			toEvict = append(toEvict, id)
		}
	}
	h.mu.Unlock()

	for _, id := range toEvict {
		h.Evict(id)
	}
}

// Close stops the sweeper and closes every live room.
func (h *Host) Close() {
	close(h.stop)
	h.mu.Lock()
	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Evict(id)
	}
}
