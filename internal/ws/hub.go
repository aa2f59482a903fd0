package ws

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"lprd/internal/pipeline"
)

const writeWait = 10 * time.Second

// client pairs a connection with a write mutex. Broadcasts and the ping
// loop write concurrently, and gorilla/websocket allows one writer at a
// time per connection.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Hub manages WebSocket connections for the live detection stream and
// fans processed frames out to them.
type Hub struct {
	clients map[*websocket.Conn]*client
	mu      sync.RWMutex
	log     zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]*client),
		log:     log.With().Str("component", "ws").Logger(),
	}
}

// Register adds a connection and returns its client wrapper, through
// which all writes to the connection must go.
func (h *Hub) Register(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{conn: conn}
	h.clients[conn] = c
	h.log.Info().Int("clients", len(h.clients)).Msg("client registered")
	return c
}

// Unregister removes a connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.log.Info().Int("clients", len(h.clients)).Msg("client unregistered")
	}
}

// HasClients reports whether anyone is listening.
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a message to every connected client, dropping clients
// whose writes fail.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(websocket.TextMessage, message); err != nil {
			h.log.Warn().Err(err).Msg("dropping slow client")
			h.Unregister(c.conn)
			c.conn.Close()
		}
	}
}

// PublishDetections sends one processed frame and its plate reads to all
// clients. The encoded frame is attached only when the source delivered
// JPEG bytes, so sources without encoded frames still stream events.
func (h *Hub) PublishDetections(frame *pipeline.Frame, events []*pipeline.DetectionEvent) {
	if !h.HasClients() {
		return
	}

	msg := NewDetectionMessage(frame, events)
	if len(frame.Data) > 0 {
		msg.Frame = base64.StdEncoding.EncodeToString(frame.Data)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal detection message")
		return
	}
	h.Broadcast(data)
}

// PublishStats sends a counter snapshot to all clients.
func (h *Hub) PublishStats(stats pipeline.Stats) {
	if !h.HasClients() {
		return
	}

	data, err := json.Marshal(NewStatsMessage(stats))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal stats message")
		return
	}
	h.Broadcast(data)
}

var _ pipeline.OverlayConsumer = (*Hub)(nil)
