package notify

import (
	"context"
	"testing"

	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
	storage_mocks "github.com/chris/coupon-exchange/pkg/storage/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestInbox_List(t *testing.T) {
	t.Run("Default Limit", func(t *testing.T) {
		mockStore := new(storage_mocks.NotificationStore)
		inbox := NewInbox(mockStore)

		mockStore.On("ListNotifications", mock.Anything, "user1", int32(defaultInboxLimit)).
			Return([]models.Notification{{Id: "n1"}}, nil)

		list, err := inbox.List(context.Background(), "user1", 0)

		assert.NoError(t, err)
		assert.Len(t, list, 1)
		mockStore.AssertExpectations(t)
	})

	t.Run("Explicit Limit", func(t *testing.T) {
		mockStore := new(storage_mocks.NotificationStore)
		inbox := NewInbox(mockStore)

		mockStore.On("ListNotifications", mock.Anything, "user1", int32(10)).Return([]models.Notification{}, nil)

		_, err := inbox.List(context.Background(), "user1", 10)

		assert.NoError(t, err)
		mockStore.AssertExpectations(t)
	})

	t.Run("Clamps Large Limit", func(t *testing.T) {
		mockStore := new(storage_mocks.NotificationStore)
		inbox := NewInbox(mockStore)

		mockStore.On("ListNotifications", mock.Anything, "user1", int32(maxInboxLimit)).Return([]models.Notification{}, nil)

		_, err := inbox.List(context.Background(), "user1", 500)

		assert.NoError(t, err)
		mockStore.AssertExpectations(t)
	})
}

func TestInbox_MarkRead(t *testing.T) {
	mockStore := new(storage_mocks.NotificationStore)
	inbox := NewInbox(mockStore)

	mockStore.On("MarkNotificationRead", mock.Anything, "user1", "missing").Return(storage.ErrNotFound)

	err := inbox.MarkRead(context.Background(), "user1", "missing")

	assert.ErrorIs(t, err, storage.ErrNotFound)
	mockStore.AssertExpectations(t)
}
