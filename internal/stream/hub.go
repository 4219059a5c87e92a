// Package stream pushes per-tick grid snapshots to WebSocket clients and
// feeds their commands back into the engine. The broadcaster never blocks on
// a slow client: each connection has a small outbound buffer and simply
// misses ticks while it is full.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gritlab/sandtable/internal/engine"
	"github.com/gritlab/sandtable/internal/monitoring"
	"github.com/gritlab/sandtable/internal/terrain"
)

const (
	writeTimeout = 5 * time.Second

	// clientBuffer is small on purpose: snapshots supersede each other, so
	// there is no value in queueing a backlog for a slow consumer.
	clientBuffer = 2
)

type helloMessage struct {
	Type     string `json:"type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	TickRate int    `json:"tick_rate"`
}

type snapshotMessage struct {
	Type       string             `json:"type"`
	Tick       uint64             `json:"tick"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Heights    []float64          `json:"heights"`
	Water      []float64          `json:"water"`
	Topography terrain.Topography `json:"topography"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func encodeSnapshot(snap *terrain.Snapshot) ([]byte, error) {
	return json.Marshal(snapshotMessage{
		Type:       "snapshot",
		Tick:       snap.Tick,
		Width:      snap.Width,
		Height:     snap.Height,
		Heights:    snap.Heights,
		Water:      snap.Water,
		Topography: snap.Topography(),
	})
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the WebSocket clients for one engine.
type Hub struct {
	engine *engine.Engine

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

// NewHub creates a hub for the given engine.
func NewHub(e *engine.Engine) *Hub {
	return &Hub{
		engine: e,
		upgrader: websocket.Upgrader{
			// the projector frontend is served from file:// during setup,
			// so origin checking is deliberately open
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run subscribes to the engine and broadcasts every published snapshot until
// the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	id, snapshots := h.engine.Subscribe()
	defer h.engine.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case snap, ok := <-snapshots:
			if !ok {
				h.closeAll()
				return nil
			}
			data, err := encodeSnapshot(snap)
			if err != nil {
				monitoring.Logf("stream: failed to encode snapshot: %v", err)
				continue
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			// client still draining earlier ticks; skip this one
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// HandleWS upgrades the request and services the connection until either
// side closes it.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("stream: upgrade failed: %v", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	monitoring.Logf("stream: client %s connected from %s", c.id, r.RemoteAddr)

	go h.writeLoop(c)

	// greet with dimensions, then the freshest snapshot so the viewer can
	// draw before the first tick arrives
	hello, _ := json.Marshal(helloMessage{
		Type:     "hello",
		Width:    h.engine.Snapshot().Width,
		Height:   h.engine.Snapshot().Height,
		TickRate: h.engine.TickRate(),
	})
	h.trySend(c, hello)
	if data, err := encodeSnapshot(h.engine.Snapshot()); err == nil {
		h.trySend(c, data)
	}

	h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		cmd, err := engine.DecodeCommand(data)
		if err != nil {
			h.sendError(c, err)
			continue
		}
		if err := h.engine.Submit(cmd); err != nil {
			h.sendError(c, err)
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.drop(c)
			break
		}
	}
	c.conn.Close()
}

// trySend queues data for a client if it is still registered and has buffer
// space. Holding the hub lock during the send keeps it ordered with drop's
// channel close.
func (h *Hub) trySend(c *client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// sendError reports a rejected command without closing the connection. A
// stalled client loses the report along with its snapshots.
func (h *Hub) sendError(c *client, err error) {
	data, merr := json.Marshal(errorMessage{Type: "error", Error: err.Error()})
	if merr != nil {
		return
	}
	h.trySend(c, data)
}

// drop removes the client and closes its send channel exactly once.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	monitoring.Logf("stream: client %s disconnected", c.id)
}
