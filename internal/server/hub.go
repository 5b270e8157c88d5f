package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"caseboard/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// wsClient pairs a connection with its outbound queue. All writes go through
// the queue's single writer goroutine; the websocket package forbids
// concurrent writers on one connection.
type wsClient struct {
	conn *websocket.Conn
	send chan eventbus.Event
}

// writeLoop drains the queue until it is closed, then closes the connection.
func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Hub fans mutation signals out to websocket clients. Each connected board
// instance receives every apply/commit/clear event and feeds it into its own
// overlay.
type Hub struct {
	upgrader    websocket.Upgrader
	unsubscribe func()

	mu    sync.Mutex
	conns map[*wsClient]struct{}
}

// NewHub constructs a hub subscribed to the given bus.
func NewHub(bus *eventbus.Bus) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*wsClient]struct{}),
	}
	if bus != nil {
		h.unsubscribe = bus.Subscribe(h.broadcast)
	}
	return h
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{conn: conn, send: make(chan eventbus.Event, sendBuffer)}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()

	// Drain the read side to notice the peer closing.
	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Len reports the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close detaches the hub from the bus and closes all connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	for c := range h.conns {
		h.dropLocked(c)
	}
	h.mu.Unlock()
}

// broadcast queues the event for every connection. Consumers too slow to
// drain their queue are dropped rather than blocking the bus.
func (h *Hub) broadcast(ev eventbus.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		select {
		case c.send <- ev:
		default:
			h.dropLocked(c)
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// dropLocked deregisters the client and closes its queue; the writer
// goroutine closes the connection on its way out.
func (h *Hub) dropLocked(c *wsClient) {
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
}
