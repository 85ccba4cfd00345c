package web

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/ecosort/wastelens/internal/logger"
)

// Hub fans live session events (statistics, failures, throughput) out to
// connected websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	logger  *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		logger:  log,
	}
}

// Register adds a client connection.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Websocket client connected", "total", count)
}

// Unregister removes and closes a client connection.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Websocket client disconnected", "total", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client. Clients whose write
// fails are dropped.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	message, err := json.Marshal(map[string]interface{}{
		"type": eventType,
		"data": payload,
	})
	if err != nil {
		h.logger.Error("Failed to marshal websocket event", "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.Warn("Dropping websocket client", "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
