package websockets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
)

// PostToConnectionAPI is the subset of the API Gateway Management API client used for pushes.
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// ConnectionStore is what the publisher needs from storage.
type ConnectionStore interface {
	ConnectionLister
	ConnectionManager
}

// APIGatewayPublisher pushes messages through an API Gateway WebSocket API.
type APIGatewayPublisher struct {
	store  ConnectionStore
	client PostToConnectionAPI
}

// NewAPIGatewayPublisher creates a publisher posting to the WebSocket API at apiEndpoint.
func NewAPIGatewayPublisher(cfg aws.Config, store ConnectionStore, apiEndpoint string) *APIGatewayPublisher {
	client := apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(apiEndpoint)
	})
	return &APIGatewayPublisher{store: store, client: client}
}

// Make sure we conform to the interface
var _ Publisher = (*APIGatewayPublisher)(nil)

// PublishToUser sends a message to every live connection of the user. Connections that
// API Gateway reports as gone are removed. Per-connection failures are logged, not returned.
func (p *APIGatewayPublisher) PublishToUser(ctx context.Context, userID string, message Message) error {
	connectionIDs, err := p.store.GetConnectionsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get connections for user: %w", err)
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	for _, connectionID := range connectionIDs {
		_, err := p.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
			ConnectionId: aws.String(connectionID),
			Data:         payload,
		})
		if err == nil {
			continue
		}

		var goneErr *apigwtypes.GoneException
		if errors.As(err, &goneErr) {
			slog.Info("stale connection found, deleting", "connection_id", connectionID)
			if err := p.store.RemoveConnection(ctx, connectionID); err != nil {
				slog.Error("failed to delete stale connection", "connection_id", connectionID, "error", err)
			}
		} else {
			slog.Error("failed to post to connection", "connection_id", connectionID, "error", err)
		}
	}

	return nil
}
