package session

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"odin-sync/internal/schema"
	"odin-sync/internal/transport"
	"odin-sync/internal/wire"
)

// TimerConfig bounds one session's lifecycle timers and push rate limit,
// see spec §4.2 and §5. Rooms built without an explicit TimerConfig (in
// tests, or where config.RoomConfig wasn't threaded through) get
// DefaultTimerConfig, which matches the values spec.md itself names.
type TimerConfig struct {
	StartWait     time.Duration
	RemovalWait   time.Duration
	IdleTimeout   time.Duration
	DataDebounce  time.Duration // one 60Hz frame by default
	PushRateLimit rate.Limit    // pushes/sec
	PushBurst     int
}

// DefaultTimerConfig returns the timer values spec.md §4.2 and §5 name.
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		StartWait:     10 * time.Second,
		RemovalWait:   10 * time.Second,
		IdleTimeout:   20 * time.Second,
		DataDebounce:  16 * time.Millisecond,
		PushRateLimit: 120,
		PushBurst:     240,
	}
}

// messageTypesThatDebounce are buffered and flushed together rather than
// sent immediately; every other outbound message type flushes the buffer
// first and is then sent immediately. See spec §4.2.
var messageTypesThatDebounce = map[string]bool{
	wire.TypePatch:      true,
	wire.TypePushResult: true,
}

// Session is one connected client's lifecycle state. It is owned and
// mutated exclusively by the room's single executor goroutine; it holds
// no internal locks (spec §5: "no locks in the core beyond the implicit
// serialization of the room executor").
type Session struct {
	ID         string
	PresenceID string
	Socket     transport.Socket

	State State

	// ClientSchema is the schema the client declared on connect. Zero
	// value (nil) until State reaches Connected.
	ClientSchema schema.SerializedSchema

	CreatedAt       time.Time
	LastInteraction time.Time
	RemovalDeadline time.Time // valid only while State == AwaitingRemoval

	outbox           []json.RawMessage
	debounceArmed    bool
	debounceDeadline time.Time

	cfg         TimerConfig
	pushLimiter *rate.Limiter
}

// New creates a session in AwaitingConnectMessage state, governed by cfg.
func New(id, presenceID string, sock transport.Socket, now time.Time, cfg TimerConfig) *Session {
	return &Session{
		ID:              id,
		PresenceID:      presenceID,
		Socket:          sock,
		State:           AwaitingConnectMessage,
		CreatedAt:       now,
		LastInteraction: now,
		cfg:             cfg,
		pushLimiter:     rate.NewLimiter(cfg.PushRateLimit, cfg.PushBurst),
	}
}

// AllowPush reports whether another push may be accepted right now,
// consuming a token from the session's rate limiter if so. Exceeding
// the limit does not close the connection — pushes are simply dropped
// silently, matching the bursty-then-idle traffic shape of a drag
// gesture rather than penalizing a client for one busy frame.
func (s *Session) AllowPush() bool {
	return s.pushLimiter.Allow()
}

// Touch records inbound activity, resetting the idle timer.
func (s *Session) Touch(now time.Time) {
	s.LastInteraction = now
}

// MarkConnected transitions to Connected, recording the client's declared schema.
func (s *Session) MarkConnected(clientSchema schema.SerializedSchema, now time.Time) {
	s.State = Connected
	s.ClientSchema = clientSchema
	s.LastInteraction = now
}

// MarkAwaitingRemoval transitions to AwaitingRemoval and starts the grace window.
func (s *Session) MarkAwaitingRemoval(now time.Time) {
	if s.State == AwaitingRemoval {
		return
	}
	s.State = AwaitingRemoval
	s.RemovalDeadline = now.Add(s.cfg.RemovalWait)
}

// ConnectExpired reports whether an AwaitingConnectMessage session has
// exceeded its configured StartWait without receiving a connect message.
func (s *Session) ConnectExpired(now time.Time) bool {
	return s.State == AwaitingConnectMessage && now.Sub(s.CreatedAt) >= s.cfg.StartWait
}

// Idle reports whether a Connected session has had no inbound activity
// for its configured IdleTimeout.
func (s *Session) Idle(now time.Time) bool {
	return s.State == Connected && now.Sub(s.LastInteraction) >= s.cfg.IdleTimeout
}

// RemovalExpired reports whether an AwaitingRemoval session has exceeded
// its grace window.
func (s *Session) RemovalExpired(now time.Time) bool {
	return s.State == AwaitingRemoval && now.After(s.RemovalDeadline)
}

// Send enqueues an outbound message. patch and push_result messages are
// buffered and debounced (spec §4.2); every other type flushes the
// buffer first and is sent immediately, outside the debounced stream.
func (s *Session) Send(msgType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: marshal %s message: %w", msgType, err)
	}

	if messageTypesThatDebounce[msgType] {
		s.outbox = append(s.outbox, data)
		s.armDebounce()
		return nil
	}

	if err := s.Flush(); err != nil {
		return err
	}
	return s.sendFrames(data)
}

// armDebounce (re)arms the debounce deadline DataDebounce from now,
// coalescing any messages enqueued before it fires.
func (s *Session) armDebounce() {
	s.debounceArmed = true
	s.debounceDeadline = time.Now().Add(s.cfg.DataDebounce)
}

// DebounceDeadline reports the current debounce deadline and whether one
// is armed, for the room's timer loop to poll.
func (s *Session) DebounceDeadline() (time.Time, bool) {
	return s.debounceDeadline, s.debounceArmed
}

// Flush sends any buffered patch/push_result messages as a single "data"
// envelope (spec §6: "a debounce-batched envelope carrying ≥1
// originally-separate messages") and clears the buffer. It is a no-op if
// the buffer is empty.
func (s *Session) Flush() error {
	s.debounceArmed = false
	if len(s.outbox) == 0 {
		return nil
	}
	batch := s.outbox
	s.outbox = nil

	env := wire.DataEnvelope{Type: wire.TypeData, Data: batch}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("session: marshal data envelope: %w", err)
	}
	return s.sendFrames(data)
}

func (s *Session) sendFrames(payload []byte) error {
	frames, err := wire.EncodeRaw(payload)
	if err != nil {
		return fmt.Errorf("session: encode frames: %w", err)
	}
	for _, f := range frames {
		if err := s.Socket.Send(f); err != nil {
			return fmt.Errorf("session: socket send: %w", err)
		}
	}
	return nil
}
