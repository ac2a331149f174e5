// Package notifier pushes realtime events to connected dashboard clients over
// WebSocket.
//
// Delivery is fire-and-forget: there is no acknowledgment, no ordering
// guarantee across event kinds beyond publish order, and no replay for
// clients that connect late (they bootstrap from the status endpoint). A
// client that cannot keep up is disconnected rather than blocking the
// publisher.
package notifier

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/replydesk/replydesk/internal/models"
	"github.com/replydesk/replydesk/internal/util"
)

// Constants for WebSocket client management
const (
	// writeWait is the maximum duration allowed for one message write.
	writeWait = 10 * time.Second
	// pongWait is how long to wait for a pong before dropping the client.
	pongWait = 60 * time.Second
	// pingPeriod is the keepalive ping interval; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendBufferSize is the per-client outbound event buffer.
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan models.Event
}

// Hub fans events out to all connected dashboard clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty notifier hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish broadcasts an event to every connected client. Clients whose send
// buffer is full are dropped.
func (h *Hub) Publish(evt models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- evt:
		default:
			slog.Warn("notifier dropping slow client", "client_id", c.id, "kind", evt.Kind)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// HandleWebSocket upgrades the request and serves events until the client
// disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("notifier upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &client{
		id:   util.GenerateClientID(),
		conn: conn,
		send: make(chan models.Event, sendBufferSize),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	slog.Info("notifier client connected", "client_id", c.id, "remote", r.RemoteAddr, "clients", count)

	go h.writePump(c)
	go h.readPump(c)
}

// unregister removes a client; safe to call more than once.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards inbound frames; its job is to notice disconnects and
// answer pings.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			slog.Debug("notifier client read ended", "error", err)
			return
		}
	}
}

// writePump serializes queued events to the connection and keeps it alive
// with pings.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				slog.Debug("notifier client write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
