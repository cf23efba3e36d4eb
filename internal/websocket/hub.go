package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message is the attempt update broadcast to all dashboard clients.
type Message struct {
	Type    string    `json:"type"`
	LoginID string    `json:"login_id"`
	Kind    string    `json:"kind"`
	State   string    `json:"state"`
	Reason  string    `json:"reason,omitempty"`
	OrderID string    `json:"order_id,omitempty"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
}

// NewAttemptMessage creates a Message describing one completed purchase attempt.
func NewAttemptMessage(loginID, kind, state, reason, orderID string, attempt int, at time.Time) Message {
	return Message{
		Type:    "attempt",
		LoginID: loginID,
		Kind:    kind,
		State:   state,
		Reason:  reason,
		OrderID: orderID,
		Attempt: attempt,
		At:      at,
	}
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
