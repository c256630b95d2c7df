// Package inapp surfaces reminders to foregrounded clients over WebSocket.
// A user with at least one connected socket counts as foregrounded; the
// dispatcher routes to this surface instead of push when that is the case.
package inapp

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Notice is the in-app reminder payload pushed to connected clients.
type Notice struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	ProgramID string `json:"program_id,omitempty"`
	Sound     bool   `json:"sound,omitempty"`
	Vibration bool   `json:"vibration,omitempty"`
}

// Hub maintains the set of active WebSocket clients, grouped by user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub under its user id.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		if _, ok := set[c]; ok {
			delete(set, c)
			close(c.send)
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
}

// Reachable reports whether the user has at least one live connection.
func (h *Hub) Reachable(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Present sends a notice to all of the user's connected clients. Returns
// false when no client received it.
func (h *Hub) Present(userID string, n Notice) bool {
	if n.Type == "" {
		n.Type = "reminder"
	}
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("marshal notice", "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for c := range h.clients[userID] {
		select {
		case c.send <- data:
			delivered = true
		default:
			// Client buffer full, drop rather than block the sweep
		}
	}
	return delivered
}

// ClientCount returns the number of connected clients across all users.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}
