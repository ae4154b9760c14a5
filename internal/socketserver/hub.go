package socketserver

import (
	"sync"

	"github.com/codefionn/turing/internal/logger"
)

// Hub tracks every accepted connection, whether it is being served or waiting
// for a free worker.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	maxConns int
}

// NewHub creates a hub admitting at most maxConns connections. Zero means no limit.
func NewHub(maxConns int) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		maxConns: maxConns,
	}
}

// Register adds client unless the connection limit is reached.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxConns > 0 && len(h.clients) >= h.maxConns {
		return false
	}
	h.clients[client.ID] = client
	logger.Debug("Socket client registered: %s (total: %d)", client.ID, len(h.clients))
	return true
}

// Unregister removes client.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		logger.Debug("Socket client unregistered: %s (total: %d)", client.ID, len(h.clients))
	}
}

// GetClientCount returns the number of tracked connections.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Shutdown closes all client connections
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) > 0 {
		logger.Info("Shutting down hub, closing %d connections", len(clients))
	}
	for _, client := range clients {
		client.Close()
	}
}
