// Package ws bridges pool state updates from the event bus to websocket
// clients, so market pages receive pushes instead of re-polling the API.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bellanapoli/bellad/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS enforcement happens at the HTTP middleware; the upgrade
		// itself accepts any origin.
		return true
	},
}

// client represents a single WebSocket connection and the set of pool
// addresses it watches. An empty set means every pool.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	pools map[string]bool
	mu    sync.RWMutex
}

// subscribeMsg is the JSON frame a client sends to change its watched pools.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Pools  []string `json:"pools"`
}

// stateEnvelope is the minimal shape the hub parses out of a bus payload to
// route it; the full update is forwarded untouched.
type stateEnvelope struct {
	Market struct {
		PoolAddress string `json:"pool_address"`
	} `json:"market"`
}

// Hub manages connected websocket clients and fans bus updates out to the
// clients watching each pool.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.EventBus
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// broadcastMsg carries one update along with the pool it belongs to.
type broadcastMsg struct {
	pool string
	data []byte
}

// NewHub creates a Hub fed by the given event bus.
func NewHub(bus domain.EventBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		done:       make(chan struct{}),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run starts the hub's event loop: one bus subscription covering every pool
// channel, plus client registration and fan-out. It exits when the context
// is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.consumeBus(ctx)

	for {
		select {
		case <-ctx.Done():
			// Closing done releases any readPump blocked on register or
			// unregister after this loop has stopped draining them.
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.watches(msg.pool) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						// The next refresh supersedes it anyway.
						h.logger.Warn("dropping update for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// consumeBus subscribes to every pool state channel and forwards payloads to
// the broadcast loop, routed by the pool address embedded in the update.
func (h *Hub) consumeBus(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, domain.PoolStatePattern)
	if err != nil {
		h.logger.Error("bus subscription failed", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("bus subscription closed")
				return
			}
			var env stateEnvelope
			if err := json.Unmarshal(data, &env); err != nil || env.Market.PoolAddress == "" {
				continue
			}
			h.broadcast <- broadcastMsg{pool: env.Market.PoolAddress, data: data}
		}
	}
}

// HandleWS upgrades the request and registers the client. The optional
// ?pool= query parameter scopes the connection to one pool; without it the
// client receives every pool's updates until it narrows the set with a
// subscribe frame.
//
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		pools: make(map[string]bool),
	}
	if pool := r.URL.Query().Get("pool"); pool != "" {
		c.pools[pool] = true
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// watches reports whether the client wants updates for the given pool.
func (c *client) watches(pool string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pools) == 0 || c.pools[pool]
}

// readPump reads frames from the connection, handling subscription changes
// until the client disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err == nil && len(sub.Pools) > 0 {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription applies a subscribe/unsubscribe frame.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe", "":
		for _, p := range msg.Pools {
			c.pools[p] = true
		}
	case "unsubscribe":
		for _, p := range msg.Pools {
			delete(c.pools, p)
		}
	}
}

// writePump pumps updates from the hub to the connection and keeps the
// connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
