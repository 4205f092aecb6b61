package storage

import (
	"context"

	"github.com/chris/coupon-exchange/pkg/models"
)

// NotificationStore persists notification records.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
	// ListNotifications returns the user's most recent notifications, newest first.
	ListNotifications(ctx context.Context, userID string, limit int32) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
}
