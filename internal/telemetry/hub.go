// Package telemetry implements the telemetry hub: a gorilla/websocket
// hub that broadcasts one TickObservation JSON message per session tick
// to every connected dashboard/debugger client. The hub is strictly
// one-way — there is no command channel, no per-connection auth, and no
// client->session feedback path at all; the read side exists only to
// service ping/pong and detect disconnects.
package telemetry

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsoft/boardpilot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Conn is the subset of *websocket.Conn a Client drives, narrowed to an
// interface so the hub can be exercised in tests without a real network
// socket.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Client is one connected dashboard/debugger socket.
type Client struct {
	hub  *Hub
	conn Conn
	send chan *domain.TickObservation
	id   string
}

// NewClient wraps conn for registration with hub.
func NewClient(id string, hub *Hub, conn Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan *domain.TickObservation, sendBufferSize), id: id}
}

// readPump drains (and discards) any client traffic purely to detect
// disconnects and keep the underlying connection's read deadline alive;
// this hub accepts no commands.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

const maxMessageSize = 512

// writePump pushes broadcast observations to the socket, never blocking
// on a slow client for longer than writeWait.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case obs, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(obs); err != nil {
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

// Hub fans a single stream of TickObservations out to every registered
// Client. Run must be started in its own goroutine before Register or
// Publish are used.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *domain.TickObservation
}

// NewHub builds an idle Hub; call Run to start its event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *domain.TickObservation, 64),
	}
}

// Run drives the hub's register/unregister/broadcast event loop. Start
// it in its own goroutine; it runs for the life of the process.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			log.Debug().Str("client_id", c.id).Int("clients", h.ClientCount()).Msg("telemetry client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			log.Debug().Str("client_id", c.id).Int("clients", h.ClientCount()).Msg("telemetry client disconnected")
		case obs := <-h.broadcast:
			h.fanOut(obs)
		}
	}
}

func (h *Hub) fanOut(obs *domain.TickObservation) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- obs:
		default:
			// Bounded send channel full: drop the oldest pending
			// observation and push the latest one rather than ever
			// blocking the driver on a slow client.
			select {
			case <-c.send:
			default:
			}
			select {
			case c.send <- obs:
			default:
			}
		}
	}
}

// Register starts a client's read/write pumps and hands it to the hub's
// event loop.
func (h *Hub) Register(c *Client) {
	h.register <- c
	go c.writePump()
	go c.readPump()
}

// Publish broadcasts obs to every connected client without blocking the
// caller — this is the only write path SessionLoop uses, and it never
// stalls the tick driver waiting on a slow or absent client.
func (h *Hub) Publish(obs domain.TickObservation) {
	select {
	case h.broadcast <- &obs:
	default:
		log.Warn().Msg("telemetry broadcast channel full, dropping tick observation")
	}
}

// ClientCount reports how many dashboards are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalObservation is a convenience for callers (e.g. an HTTP
// debugging endpoint) that want the wire JSON without a live socket.
func MarshalObservation(obs domain.TickObservation) ([]byte, error) {
	return json.Marshal(obs)
}
