package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultThrottle is the trailing-throttle interval for persistence
// writes (spec §4.6: "at most once per PERSIST_THROTTLE, trailing").
const DefaultThrottle = 10 * time.Second

// Throttle coalesces a burst of mutations into at most one write per
// interval, always capturing the *latest* snapshot at flush time rather
// than the one in effect when the timer first armed (trailing-edge
// throttle, not leading-edge debounce).
type Throttle struct {
	adapter Adapter
	roomID  string
	wait    time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	pending *Snapshot
	timer   *time.Timer
}

// NewThrottle builds a Throttle writing through adapter. adapter may be
// nil, in which case Request and Flush are no-ops — callers running
// without a configured persistence backend (e.g. tests) don't need a
// separate code path.
func NewThrottle(adapter Adapter, roomID string, wait time.Duration, logger *zap.Logger) *Throttle {
	return &Throttle{adapter: adapter, roomID: roomID, wait: wait, logger: logger}
}

// Request schedules snap to be written at the next throttle tick. If a
// write is already scheduled, snap replaces the pending one rather than
// queuing an additional write.
func (t *Throttle) Request(snap *Snapshot) {
	if t.adapter == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending = snap
	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.wait, t.fire)
}

func (t *Throttle) fire() {
	t.mu.Lock()
	snap := t.pending
	t.pending = nil
	t.timer = nil
	t.mu.Unlock()

	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.wait)
	defer cancel()
	if err := t.adapter.Save(ctx, snap); err != nil && t.logger != nil {
		t.logger.Warn("persistence write failed", zap.String("room", t.roomID), zap.Error(err))
	}
}

// Flush writes any pending snapshot synchronously, bypassing the
// remainder of the throttle window. Called on room close.
func (t *Throttle) Flush() {
	if t.adapter == nil {
		return
	}
	t.mu.Lock()
	snap := t.pending
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.adapter.Save(ctx, snap); err != nil && t.logger != nil {
		t.logger.Warn("persistence flush failed", zap.String("room", t.roomID), zap.Error(err))
	}
}
