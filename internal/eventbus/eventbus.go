// Package eventbus publishes best-effort room lifecycle events over
// NATS: room opened/closed, session joined/left. Nothing in the sync
// protocol depends on delivery — a slow or absent NATS server must
// never block a room. Grounded on go-server's pkg/nats client, trimmed
// to the publish-only subset this module needs.
package eventbus

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event kinds, published under subject "odin-sync.<kind>".
const (
	KindRoomOpened    = "room_opened"
	KindRoomClosed    = "room_closed"
	KindSessionJoined = "session_joined"
	KindSessionLeft   = "session_left"
)

// Event is the JSON payload published for every lifecycle transition.
type Event struct {
	Kind      string    `json:"kind"`
	RoomID    string    `json:"room_id"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

const subjectPrefix = "odin-sync."

// Bus is a thin best-effort wrapper around a NATS connection. A nil
// *Bus is valid and every method on it is a no-op, so rooms can be
// constructed without an event bus configured.
type Bus struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// Config mirrors the connection tuning exposed by go-server's NATS
// client: reconnect behaviour tuned for a sidecar that may restart
// independently of this process.
type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
	PingInterval    time.Duration
}

// DefaultConfig returns conservative reconnect settings suitable for a
// local or in-cluster NATS deployment.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		MaxReconnects:   -1, // retry forever
		ReconnectWait:   2 * time.Second,
		ReconnectJitter: 500 * time.Millisecond,
		PingInterval:    20 * time.Second,
	}
}

// Connect dials NATS. Connection failures are returned to the caller so
// startup can decide whether an event bus is required; once connected,
// transient disconnects are handled by the client's own reconnect logic
// and only logged here.
func Connect(cfg Config, logger *zap.Logger) (*Bus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.PingInterval(cfg.PingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("eventbus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("eventbus reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Warn("eventbus error", zap.Error(err))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: conn, logger: logger}, nil
}

// Publish sends an event and swallows any error beyond logging it: event
// delivery is diagnostic, never load-bearing for sync correctness.
func (b *Bus) Publish(kind, roomID, sessionID string, at time.Time) {
	if b == nil || b.conn == nil {
		return
	}
	ev := Event{Kind: kind, RoomID: roomID, SessionID: sessionID, At: at}
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("eventbus marshal failed", zap.Error(err))
		return
	}
	if err := b.conn.Publish(subjectPrefix+kind, data); err != nil {
		b.logger.Warn("eventbus publish failed", zap.String("kind", kind), zap.Error(err))
	}
}

// Close drains and closes the underlying connection.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	_ = b.conn.Drain()
}
