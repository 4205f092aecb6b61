package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// SaveNotification puts a notification record. The table is keyed by user_id and id; ids are
// time-ordered, so the sort key orders a user's notifications by creation.
func (s *Store) SaveNotification(ctx context.Context, n *models.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if _, err := s.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.NotificationsTableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to put notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int32) ([]models.Notification, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.NotificationsTableName),
		KeyConditionExpression: aws.String("user_id = :user"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":user": stringAV(userID),
		},
		ScanIndexForward: aws.Bool(false), // newest first
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}

	var notifications []models.Notification
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
	}
	return notifications, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	_, err := s.Client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.NotificationsTableName),
		Key: map[string]types.AttributeValue{
			"user_id": stringAV(userID),
			"id":      stringAV(notificationID),
		},
		UpdateExpression:    aws.String("SET #read = :true"),
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{
			"#read": "read",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": boolAV(true),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("notification %s: %w", notificationID, storage.ErrNotFound)
		}
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}
