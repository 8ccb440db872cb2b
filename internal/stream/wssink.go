package stream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSSinkConfig holds websocket sink settings.
type WSSinkConfig struct {
	WriteTimeout time.Duration // Per-message write deadline (default: 5s)
	ReadLimit    int64         // Max inbound frame size (default: 512)
}

// WSSink broadcasts events to every connected websocket client. It is an
// http.Handler; mount it where clients should connect. Clients that fail a
// write are dropped. Events put while no client is connected are discarded.
type WSSink struct {
	cfg      WSSinkConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSSink creates a websocket sink.
func NewWSSink(cfg WSSinkConfig, logger *slog.Logger) *WSSink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 512
	}
	return &WSSink{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
func (s *WSSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsClient{conn: conn}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	// Inbound frames are ignored; reading detects disconnects.
	conn.SetReadLimit(s.cfg.ReadLimit)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.drop(c)
}

// Put writes e to every client.
func (s *WSSink) Put(ctx context.Context, e Event) error {
	data, err := Marshal(e)
	if err != nil {
		return err
	}

	for _, c := range s.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.writeMu.Unlock()
		if err != nil {
			s.logger.Warn("websocket write failed, dropping client",
				"remote", c.conn.RemoteAddr().String(),
				"error", err,
			)
			s.drop(c)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *WSSink) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close sends a close frame to every client and rejects new ones.
func (s *WSSink) Close() error {
	s.mu.Lock()
	s.closed = true
	clients := s.clients
	s.clients = make(map[*wsClient]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		c.conn.Close()
	}
	return nil
}

func (s *WSSink) snapshot() []*wsClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

func (s *WSSink) drop(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}
