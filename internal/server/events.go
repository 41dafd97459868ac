package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sells-group/lost-item-finder/internal/metrics"
	"github.com/sells-group/lost-item-finder/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// allowOrigin accepts WebSocket handshakes from the configured origins.
// Requests without an Origin header come from non-browser clients.
func (s *Server) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// client holds at most one pending snapshot. A newer snapshot replaces an
// unsent one, so a slow client skips intermediate states but always
// receives the latest.
type client struct {
	conn   *websocket.Conn
	latest chan []byte
	done   chan struct{}
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		latest: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

// offer replaces the pending snapshot with msg. Callers hold hub.mu.
func (c *client) offer(msg []byte) {
	for {
		select {
		case c.latest <- msg:
			return
		default:
		}
		select {
		case <-c.latest:
		default:
		}
	}
}

// hub fans state snapshots out to connected WebSocket clients. Publishing
// never blocks.
type hub struct {
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(log *zap.Logger, m *metrics.Metrics) *hub {
	return &hub{
		log:     log,
		metrics: m,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) publish(st session.State) {
	msg, err := json.Marshal(st)
	if err != nil {
		h.log.Error("server: marshal state", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.offer(msg)
	}
}

func (h *hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.EventClients.Inc()
	return true
}

func (h *hub) sendTo(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	c.offer(msg)
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
		h.metrics.EventClients.Dec()
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.done)
		h.metrics.EventClients.Dec()
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleEvents upgrades to a WebSocket, sends the current state and then
// every subsequent change.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("server: websocket upgrade", zap.Error(err))
		return
	}

	c := newClient(conn)
	if !s.hub.add(c) {
		conn.Close() //nolint:errcheck
		return
	}

	if initial, err := json.Marshal(s.sess.State()); err == nil {
		s.hub.sendTo(c, initial)
	}

	go s.writeEvents(c)
	s.readEvents(c)
}

// readEvents discards client messages and detects disconnects.
func (s *Server) readEvents(c *client) {
	defer s.hub.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeEvents(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck
	}()

	for {
		select {
		case msg := <-c.latest:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
