package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/cleanwarts/internal/metrics"
)

const (
	sendBufferSize = 64
	pingInterval   = 30 * time.Second
)

// Frame is the envelope of every message written to a websocket session.
type Frame struct {
	Stream string `json:"stream"`
	Data   any    `json:"data"`
}

// Session is a single websocket connection and the live views it watches.
type Session struct {
	conn     *ws.Conn
	send     chan []byte
	registry *Registry
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewSession(conn *ws.Conn, logger *slog.Logger) *Session {
	return &Session{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		registry: NewRegistry(),
		logger:   logger,
	}
}

// Registry returns the session's watcher registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Push queues a frame for the named stream. Frames are dropped once the
// session is closed or its buffer is full.
func (s *Session) Push(stream string, data any) {
	msg, err := json.Marshal(Frame{Stream: stream, Data: data})
	if err != nil {
		s.logger.Error("marshal frame", "stream", stream, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- msg:
	default:
		s.logger.Warn("session buffer full, frame dropped", "stream", stream)
	}
}

// Run starts the write pump and runs the read pump. It blocks until the
// connection is closed, then disposes every watcher of the session.
func (s *Session) Run(ctx context.Context) {
	metrics.WebSocketSessions.Inc()
	defer metrics.WebSocketSessions.Dec()
	defer s.close()
	defer s.registry.DisposeAll()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump(ctx)
	s.readPump(ctx)
}

// Close stops every watcher of the session and closes its connection.
// Run returns once the peer acknowledges or the close times out.
func (s *Session) Close(reason string) {
	s.registry.DisposeAll()
	if s.conn != nil {
		go s.conn.Close(ws.StatusPolicyViolation, reason)
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// readPump reads and discards all incoming messages. It returns on error
// (connection close), which triggers cleanup.
func (s *Session) readPump(ctx context.Context) {
	for {
		_, _, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
	}
}

// writePump drains the send channel and writes messages to the websocket.
// It also sends periodic pings to detect stale connections.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
