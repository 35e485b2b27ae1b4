// Package room implements the Room: the authoritative, single-writer,
// in-memory replica of one document plus its session table and
// tombstone index. See spec §4.5.
package room

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	eventbus "odin-sync/internal/eventbus"
	"odin-sync/internal/metrics"
	"odin-sync/internal/persistence"
	"odin-sync/internal/record"
	"odin-sync/internal/schema"
	"odin-sync/internal/session"
	"odin-sync/internal/transport"
)

// entry is one live (document- or presence-scope) record plus the clock
// value of its last mutation. See spec §3 "Room State".
type entry struct {
	state            record.Record
	lastChangedClock uint64
}

// Default tombstone bookkeeping limits and janitor period, see spec §3
// "Tombstone cap" and §4.2. These are the values used when Options
// leaves the corresponding field at zero; config.RoomConfig overrides
// them per-deployment.
const (
	DefaultMaxTombstones        = 3000
	DefaultTombstonePruneBuffer = 300
	DefaultJanitorPeriod        = 2 * time.Second
)

// Room owns one document's authoritative state. All exported methods are
// safe to call from any goroutine: they serialize through a single
// internal executor goroutine, matching spec §5's single-writer model.
type Room struct {
	ID string

	schema  *schema.Schema
	persist persistence.Adapter
	events  *eventbus.Bus
	metrics *metrics.Registry
	logger  *zap.Logger

	entries    map[string]*entry
	tombstones map[string]uint64 // id -> deleted_at_clock

	clock                         uint64
	documentClock                 uint64
	tombstoneHistoryStartsAtClock uint64

	sessions map[string]*session.Session
	timers   session.TimerConfig

	maxTombstones        int
	tombstonePruneBuffer int
	janitorPeriod        time.Duration

	throttle *persistence.Throttle

	cmds   chan cmdFunc
	stop   chan struct{}
	stopped chan struct{}
}

type cmdFunc func(*Room)

// Options configures a new Room. MaxTombstones, TombstonePruneBuffer and
// JanitorPeriod each default to their spec-named value
// (DefaultMaxTombstones, DefaultTombstonePruneBuffer, DefaultJanitorPeriod)
// when left zero. Timers is replaced by session.DefaultTimerConfig only
// when it is entirely zero; a partially filled TimerConfig is used as given.
type Options struct {
	Schema      *schema.Schema
	Persistence persistence.Adapter
	Events      *eventbus.Bus
	Metrics     *metrics.Registry
	Logger      *zap.Logger

	Timers               session.TimerConfig
	MaxTombstones        int
	TombstonePruneBuffer int
	JanitorPeriod        time.Duration

	PersistThrottle time.Duration // defaults to persistence.DefaultThrottle
}

// New constructs a Room. If restore is non-nil, it seeds the room's
// state from a previously loaded snapshot (§4.6: "load any existing
// snapshot"); otherwise the room bootstraps default records (§3 "Record
// Lifecycle: Created... on room bootstrap of default records").
func New(id string, opts Options, restore *persistence.Snapshot) (*Room, error) {
	if opts.Schema == nil {
		return nil, fmt.Errorf("room: Options.Schema is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsReg := opts.Metrics
	if metricsReg == nil {
		metricsReg = metrics.NewRegistry()
	}

	timers := opts.Timers
	if timers == (session.TimerConfig{}) {
		timers = session.DefaultTimerConfig()
	}
	maxTombstones := opts.MaxTombstones
	if maxTombstones == 0 {
		maxTombstones = DefaultMaxTombstones
	}
	pruneBuffer := opts.TombstonePruneBuffer
	if pruneBuffer == 0 {
		pruneBuffer = DefaultTombstonePruneBuffer
	}
	janitorPeriod := opts.JanitorPeriod
	if janitorPeriod == 0 {
		janitorPeriod = DefaultJanitorPeriod
	}

	r := &Room{
		ID:                   id,
		schema:               opts.Schema,
		persist:              opts.Persistence,
		events:               opts.Events,
		metrics:              metricsReg,
		logger:               logger,
		entries:              map[string]*entry{},
		tombstones:           map[string]uint64{},
		sessions:             map[string]*session.Session{},
		timers:               timers,
		maxTombstones:        maxTombstones,
		tombstonePruneBuffer: pruneBuffer,
		janitorPeriod:        janitorPeriod,
		cmds:                 make(chan cmdFunc, 64),
		stop:                 make(chan struct{}),
		stopped:              make(chan struct{}),
	}

	throttleWait := opts.PersistThrottle
	if throttleWait == 0 {
		throttleWait = persistence.DefaultThrottle
	}
	if r.persist != nil {
		r.throttle = persistence.NewThrottle(r.persist, id, throttleWait, logger)
	}

	if restore != nil {
		if err := r.restoreFromSnapshot(restore); err != nil {
			return nil, fmt.Errorf("room: restore snapshot: %w", err)
		}
	} else {
		r.bootstrapDefaults()
	}

	r.events.Publish(eventbus.KindRoomOpened, r.ID, "", time.Now())
	go r.run()
	return r, nil
}

// run is the single executor goroutine: every state mutation funnels
// through here, one command at a time (spec §5).
func (r *Room) run() {
	defer close(r.stopped)
	janitor := time.NewTicker(r.janitorPeriod)
	defer janitor.Stop()
	debounce := time.NewTicker(r.timers.DataDebounce)
	defer debounce.Stop()

	for {
		select {
		case cmd := <-r.cmds:
			cmd(r)
		case <-janitor.C:
			r.runJanitorTick(time.Now())
		case <-debounce.C:
			r.flushExpiredDebounces(time.Now())
		case <-r.stop:
			r.closeAllSockets()
			return
		}
	}
}

// exec submits fn to the executor and blocks until it has run, unless
// the room has already stopped.
func (r *Room) exec(fn func(*Room)) {
	done := make(chan struct{})
	wrapped := func(rm *Room) {
		fn(rm)
		close(done)
	}
	select {
	case r.cmds <- wrapped:
		<-done
	case <-r.stopped:
	}
}

// Close cancels the janitor, flushes any pending persistence write, and
// closes every socket.
func (r *Room) Close() {
	select {
	case <-r.stop:
		return // already closing
	default:
	}
	close(r.stop)
	<-r.stopped
	if r.throttle != nil {
		r.throttle.Flush()
	}
	r.events.Publish(eventbus.KindRoomClosed, r.ID, "", time.Now())
}

func (r *Room) closeAllSockets() {
	for _, s := range r.sessions {
		_ = s.Socket.Close()
	}
}

// SessionCount returns the number of tracked sessions (including
// AwaitingRemoval ones still present). Used by tests and health checks.
func (r *Room) SessionCount() int {
	var n int
	r.exec(func(rm *Room) { n = len(rm.sessions) })
	return n
}

// HandleClose transitions a session to AwaitingRemoval (socket closed by
// the transport layer).
func (r *Room) HandleClose(sessionID string) {
	r.exec(func(rm *Room) { rm.cancelSession(sessionID, "socket_closed") })
}

// HandleError transitions a session to AwaitingRemoval (transport error).
func (r *Room) HandleError(sessionID string, cause error) {
	r.exec(func(rm *Room) {
		rm.logger.Debug("session transport error", zap.String("session", sessionID), zap.Error(cause))
		rm.cancelSession(sessionID, "transport_error")
	})
}

// Socket exposes the transport.Socket interface indirection so callers
// constructing sessions don't need to import the transport package
// themselves in simple cases.
type Socket = transport.Socket
