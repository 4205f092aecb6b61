package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub keeps the WebSocket connections of the local development server in memory
// and pushes messages to them directly.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*hubConn
}

type hubConn struct {
	userID string
	mu     sync.Mutex
	ws     *websocket.Conn
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*hubConn)}
}

// Make sure we conform to the interface
var _ Publisher = (*Hub)(nil)

// Register tracks a connection until Unregister is called.
func (h *Hub) Register(connectionID, userID string, ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connectionID] = &hubConn{userID: userID, ws: ws}
}

// Unregister stops tracking a connection.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connectionID)
}

// PublishToUser writes the message to every registered connection of the user.
func (h *Hub) PublishToUser(ctx context.Context, userID string, message Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.mu.Lock()
	var targets []*hubConn
	for _, c := range h.conns {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		err := c.ws.WriteMessage(websocket.TextMessage, payload)
		c.mu.Unlock()
		if err != nil {
			slog.Error("failed to write to local connection", "user_id", userID, "error", err)
		}
	}
	return nil
}
