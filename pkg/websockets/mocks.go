package websockets

import "context"

// NoOpPublisher is a publisher that does nothing. Used when no push channel is configured.
type NoOpPublisher struct{}

// PublishToUser does nothing.
func (p *NoOpPublisher) PublishToUser(ctx context.Context, userID string, message Message) error {
	return nil
}
