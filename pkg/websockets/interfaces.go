package websockets

import (
	"context"
)

// ConnectionManager defines the interface for managing WebSocket connections.
type ConnectionManager interface {
	AddConnection(ctx context.Context, connectionID, userID string) error
	RemoveConnection(ctx context.Context, connectionID string) error
}

// ConnectionLister resolves a user's live connections.
type ConnectionLister interface {
	GetConnectionsForUser(ctx context.Context, userID string) ([]string, error)
}

// Publisher defines the interface for pushing messages to a user's WebSocket clients.
type Publisher interface {
	PublishToUser(ctx context.Context, userID string, message Message) error
}
