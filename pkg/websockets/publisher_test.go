package websockets_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/chris/coupon-exchange/pkg/storage/memory"
	"github.com/chris/coupon-exchange/pkg/websockets"
	"github.com/chris/coupon-exchange/pkg/websockets/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPublishToUser(t *testing.T) {
	ctx := context.Background()
	msg := websockets.Message{Type: websockets.MessageTypeNotification, Payload: map[string]string{"message": "hi"}}

	t.Run("Success", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddConnection(ctx, "conn-1", "user1"))
		require.NoError(t, store.AddConnection(ctx, "conn-2", "user2"))
		mockClient := new(mocks.PostToConnectionAPI)
		p := websockets.NewAPIGatewayPublisherForTest(store, mockClient)

		mockClient.On("PostToConnection", mock.Anything, mock.MatchedBy(func(in *apigatewaymanagementapi.PostToConnectionInput) bool {
			return *in.ConnectionId == "conn-1"
		})).Once().Return(&apigatewaymanagementapi.PostToConnectionOutput{}, nil)

		assert.NoError(t, p.PublishToUser(ctx, "user1", msg))
		mockClient.AssertExpectations(t)
	})

	t.Run("Gone Connection Is Removed", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddConnection(ctx, "conn-1", "user1"))
		mockClient := new(mocks.PostToConnectionAPI)
		p := websockets.NewAPIGatewayPublisherForTest(store, mockClient)

		mockClient.On("PostToConnection", mock.Anything, mock.Anything).Once().Return(nil, &apigwtypes.GoneException{})

		assert.NoError(t, p.PublishToUser(ctx, "user1", msg))
		conns, _ := store.GetConnectionsForUser(ctx, "user1")
		assert.Empty(t, conns)
		mockClient.AssertExpectations(t)
	})

	t.Run("Post Fails", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.AddConnection(ctx, "conn-1", "user1"))
		mockClient := new(mocks.PostToConnectionAPI)
		p := websockets.NewAPIGatewayPublisherForTest(store, mockClient)

		mockClient.On("PostToConnection", mock.Anything, mock.Anything).Once().Return(nil, errors.New("boom"))

		assert.NoError(t, p.PublishToUser(ctx, "user1", msg))
		conns, _ := store.GetConnectionsForUser(ctx, "user1")
		assert.Len(t, conns, 1)
		mockClient.AssertExpectations(t)
	})
}
