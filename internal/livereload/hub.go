// Package livereload notifies connected browsers that they should refresh
// after a template reload.
//
// A Hub tracks websocket clients and fans a reload signal out to whoever is
// connected at that moment. Delivery is best effort: a client that cannot
// keep up is dropped rather than waited on, so the reload path never blocks
// on a slow listener.
package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/tessera/internal/logging"
)

// WebSocketPath is the endpoint browsers connect to.
const WebSocketPath = "/livereload"

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Message is the JSON signal sent to clients
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Client represents a connected websocket client
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub tracks connected live-reload clients
type Hub struct {
	clients        map[*websocket.Conn]*Client
	clientsMutex   sync.RWMutex
	broadcast      chan []byte
	register       chan *Client
	unregister     chan *websocket.Conn
	done           chan struct{}
	allowedOrigins []string
	logger         logging.Logger
}

// Option configures a Hub
type Option func(*Hub)

// WithLogger sets the hub's logger
func WithLogger(logger logging.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithAllowedOrigins permits additional origin hosts beyond localhost
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.allowedOrigins = origins
	}
}

// NewHub creates a hub; Run must be called before clients connect
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*websocket.Conn]*Client),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithComponent("livereload")
	return h
}

// NotifyAll signals every currently connected client to refresh. It never
// blocks: if the broadcast queue is full the newest signal is dropped,
// which is harmless since an earlier one is already on its way.
func (h *Hub) NotifyAll() {
	payload, err := json.Marshal(Message{Type: "reload", Timestamp: time.Now()})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- payload:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Run processes registrations and broadcasts until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			// Unblocks register/unregister senders that arrive after the
			// loop has stopped draining them.
			close(h.done)
			return

		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "live reload client connected", "total", count)

		case conn := <-h.unregister:
			h.clientsMutex.Lock()
			if client, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(client.send)
				conn.Close(websocket.StatusNormalClosure, "")
			}
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(ctx, "live reload client disconnected", "total", count)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var stalled []*websocket.Conn
			for conn, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full; drop the client instead of waiting.
					stalled = append(stalled, conn)
				}
			}
			h.clientsMutex.RUnlock()

			if len(stalled) > 0 {
				h.clientsMutex.Lock()
				for _, conn := range stalled {
					if client, ok := h.clients[conn]; ok {
						delete(h.clients, conn)
						close(client.send)
						conn.Close(websocket.StatusNormalClosure, "")
					}
				}
				h.clientsMutex.Unlock()
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	for conn, client := range h.clients {
		close(client.send)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.clients = make(map[*websocket.Conn]*Client)
}

// ServeHTTP upgrades the connection and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	go client.writePump()
	go client.readPump()

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// checkOrigin allows localhost origins plus the configured extra hosts
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	switch originURL.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if originURL.Host == r.Host {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if originURL.Host == allowed {
			return true
		}
	}
	return false
}

// readPump drains the connection until the peer goes away
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c.conn:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		ctx, cancel := context.WithTimeout(context.Background(), pongWait)
		_, _, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			return
		}
	}
}

// writePump delivers broadcasts and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
