package storage

import "context"

// ConnectionStore defines the interface for storing and retrieving WebSocket connection IDs.
type ConnectionStore interface {
	AddConnection(ctx context.Context, connectionID, userID string) error
	RemoveConnection(ctx context.Context, connectionID string) error
	GetConnectionsForUser(ctx context.Context, userID string) ([]string, error)
}
