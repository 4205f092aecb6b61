package notify

import (
	"context"

	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// Inbox reads back the notifications the Dispatcher recorded.
type Inbox struct {
	store storage.NotificationStore
}

// NewInbox creates an Inbox.
func NewInbox(store storage.NotificationStore) *Inbox {
	return &Inbox{store: store}
}

// List returns the user's most recent notifications, newest first. A non-positive limit
// means 50 and anything above 200 is capped at 200.
func (i *Inbox) List(ctx context.Context, userID string, limit int32) ([]models.Notification, error) {
	switch {
	case limit <= 0:
		limit = defaultInboxLimit
	case limit > maxInboxLimit:
		limit = maxInboxLimit
	}
	return i.store.ListNotifications(ctx, userID, limit)
}

// MarkRead flags one of the user's notifications as read.
func (i *Inbox) MarkRead(ctx context.Context, userID, notificationID string) error {
	return i.store.MarkNotificationRead(ctx, userID, notificationID)
}
