package dynamodb

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/chris/coupon-exchange/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSaveNotification(t *testing.T) {
	mockClient := new(mocks.DynamoDBAPI)
	store := newStore(mockClient)
	n := &models.Notification{Id: "n1", UserId: "u1", Message: "hello", CreatedAt: now}

	mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		user := in.Item["user_id"].(*types.AttributeValueMemberS)
		return aws.ToString(in.TableName) == "notifications" && user.Value == "u1"
	})).Return(&dynamodb.PutItemOutput{}, nil)

	err := store.SaveNotification(context.Background(), n)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestListNotifications(t *testing.T) {
	t.Run("Newest First With Limit", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)
		item, _ := attributevalue.MarshalMap(models.Notification{Id: "n2", UserId: "u1", Message: "second", CreatedAt: now})

		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return !aws.ToBool(in.ScanIndexForward) && aws.ToInt32(in.Limit) == 5
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}, nil)

		notifications, err := store.ListNotifications(context.Background(), "u1", 5)

		require.NoError(t, err)
		require.Len(t, notifications, 1)
		assert.Equal(t, "second", notifications[0].Message)
		mockClient.AssertExpectations(t)
	})

	t.Run("Query Fails", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)

		mockClient.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("query failed"))

		_, err := store.ListNotifications(context.Background(), "u1", 0)

		assert.Error(t, err)
		mockClient.AssertExpectations(t)
	})
}

func TestMarkNotificationRead(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(&dynamodb.UpdateItemOutput{}, nil)

		assert.NoError(t, store.MarkNotificationRead(context.Background(), "u1", "n1"))
		mockClient.AssertExpectations(t)
	})

	t.Run("Unknown Notification", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)

		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		err := store.MarkNotificationRead(context.Background(), "u1", "n1")

		assert.ErrorIs(t, err, storage.ErrNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestConnections(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)

		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
			return aws.ToString(in.TableName) == "connections"
		})).Return(&dynamodb.PutItemOutput{}, nil)

		assert.NoError(t, store.AddConnection(context.Background(), "conn1", "u1"))
		mockClient.AssertExpectations(t)
	})

	t.Run("Remove", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)

		mockClient.On("DeleteItem", mock.Anything, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil)

		assert.NoError(t, store.RemoveConnection(context.Background(), "conn1"))
		mockClient.AssertExpectations(t)
	})

	t.Run("For User", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		store := newStore(mockClient)

		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
			return aws.ToString(in.IndexName) == connectionUserIdx
		})).Return(&dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{
			{"connection_id": stringAV("conn1")},
			{"connection_id": stringAV("conn2")},
		}}, nil)

		ids, err := store.GetConnectionsForUser(context.Background(), "u1")

		require.NoError(t, err)
		assert.Equal(t, []string{"conn1", "conn2"}, ids)
		mockClient.AssertExpectations(t)
	})
}
