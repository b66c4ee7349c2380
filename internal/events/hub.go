package events

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const clientBuffer = 32

// client is one websocket viewer with its own outbound queue.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans round events out to websocket viewers. Slow viewers drop
// messages rather than block the publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu     sync.RWMutex
	rounds map[string]map[*client]struct{}
	closed map[string]struct{}
}

// NewHub creates a hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
		logger: logger.With().Str("component", "hub").Logger(),
		rounds: make(map[string]map[*client]struct{}),
		closed: make(map[string]struct{}),
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(roundID string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Type).Msg("failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rounds[roundID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug().Str("round", roundID).Str("event", ev.Type).Msg("viewer queue full, dropping event")
		}
	}
}

// Viewers returns the number of viewers of a round.
func (h *Hub) Viewers(roundID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rounds[roundID])
}

// CloseRound disconnects every viewer of a round. Later viewers of the
// round are refused.
func (h *Hub) CloseRound(roundID string) {
	h.mu.Lock()
	clients := h.rounds[roundID]
	delete(h.rounds, roundID)
	h.closed[roundID] = struct{}{}
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}

// Serve upgrades the request and streams the round's events until the
// viewer disconnects or the round is closed.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roundID string) {
	if h.isClosed(roundID) {
		http.Error(w, "round has ended", http.StatusGone)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	// The round may have closed while the connection was upgraded.
	if _, ok := h.closed[roundID]; ok {
		h.mu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "round ended"))
		conn.Close()
		return
	}
	if h.rounds[roundID] == nil {
		h.rounds[roundID] = make(map[*client]struct{})
	}
	h.rounds[roundID][c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(roundID, c)
}

func (h *Hub) isClosed(roundID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.closed[roundID]
	return ok
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Debug().Err(err).Msg("failed to send message")
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "round ended"))
}

func (h *Hub) remove(roundID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rounds[roundID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rounds, roundID)
	}
	close(c.send)
}
