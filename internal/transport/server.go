package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"odin-sync/internal/host"
	"odin-sync/internal/metrics"
	"odin-sync/internal/wire"
)

// Server accepts TCP connections, performs the websocket handshake, and
// routes each connection to the room named by its URL path
// ("/rooms/<id>"), following go-server-3's internal/transport.Server —
// generalized from a single broadcast hub to per-room routing through a
// host.Host.
type Server struct {
	addr    string
	host    *host.Host
	logger  *zap.Logger
	metrics *metrics.Registry

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer builds a Server listening on addr ("host:port").
func NewServer(addr string, h *host.Host, logger *zap.Logger, metricsRegistry *metrics.Registry) *Server {
	return &Server{addr: addr, host: h, logger: logger, metrics: metricsRegistry}
}

// Start begins accepting connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if s.listener != nil {
		return errors.New("transport: already started")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	s.listener = ln
	s.logger.Info("transport listening", zap.String("addr", s.addr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Stop closes the listener and waits for every connection goroutine to exit.
func (s *Server) Stop() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("accept error", zap.Error(err))
			return
		}
		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			s.handleConnection(ctx, c)
		}(conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	roomID, err := upgradeAndRouteRoomID(conn)
	if err != nil {
		s.logger.Debug("upgrade failed", zap.Error(err))
		return
	}
	_ = conn.SetDeadline(time.Time{})

	rm, err := s.host.Room(ctx, roomID)
	if err != nil {
		s.logger.Warn("room lookup failed", zap.String("room", roomID), zap.Error(err))
		return
	}

	sock := NewWSSocket(conn)
	sessionID := rm.AcceptSession(sock)

	asm := wire.NewAssembler()
	for {
		frame, err := sock.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				rm.HandleClose(sessionID)
			} else {
				rm.HandleError(sessionID, err)
			}
			return
		}
		complete, done, err := asm.Feed(frame)
		if err != nil {
			rm.HandleError(sessionID, err)
			return
		}
		if !done {
			continue
		}
		rm.HandleMessage(sessionID, complete)
	}
}

// upgradeAndRouteRoomID performs the websocket handshake and extracts
// the room id from the request path "/rooms/<id>".
func upgradeAndRouteRoomID(conn net.Conn) (string, error) {
	var roomID string
	u := ws.Upgrader{
		OnRequest: func(uri []byte) error {
			path := string(uri)
			const prefix = "/rooms/"
			if !strings.HasPrefix(path, prefix) {
				return fmt.Errorf("transport: unexpected path %q", path)
			}
			roomID = strings.TrimPrefix(path, prefix)
			if roomID == "" {
				return fmt.Errorf("transport: empty room id")
			}
			return nil
		},
	}
	if _, err := u.Upgrade(conn); err != nil {
		return "", fmt.Errorf("transport: ws upgrade: %w", err)
	}
	return roomID, nil
}
