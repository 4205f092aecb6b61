package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/queue"
	queue_mocks "github.com/chris/coupon-exchange/pkg/queue/mocks"
	storage_mocks "github.com/chris/coupon-exchange/pkg/storage/mocks"
	"github.com/chris/coupon-exchange/pkg/websockets"
	ws_mocks "github.com/chris/coupon-exchange/pkg/websockets/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestDispatcher_Notify(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockStore := new(storage_mocks.NotificationStore)
		mockPublisher := new(ws_mocks.Publisher)
		mockEmail := new(queue_mocks.EmailEnqueuer)
		d := NewDispatcher(mockStore, mockPublisher, mockEmail)

		mockStore.On("SaveNotification", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
			return n.UserId == "user1" && n.Message == "hello" && n.Link == "/transactions/t1" && n.Id != ""
		})).Once().Return(nil)
		mockPublisher.On("PublishToUser", mock.Anything, "user1", mock.MatchedBy(func(m websockets.Message) bool {
			return m.Type == websockets.MessageTypeNotification
		})).Once().Return(nil)
		mockEmail.On("EnqueueEmail", mock.Anything, mock.MatchedBy(func(job queue.EmailJob) bool {
			return job.UserId == "user1" && job.Message == "hello"
		})).Once().Return(nil)

		d.Notify(context.Background(), "user1", "hello", "/transactions/t1")
		d.Wait()

		mockStore.AssertExpectations(t)
		mockPublisher.AssertExpectations(t)
		mockEmail.AssertExpectations(t)
	})

	t.Run("Channel Failures Do Not Stop Other Channels", func(t *testing.T) {
		mockStore := new(storage_mocks.NotificationStore)
		mockPublisher := new(ws_mocks.Publisher)
		mockEmail := new(queue_mocks.EmailEnqueuer)
		d := NewDispatcher(mockStore, mockPublisher, mockEmail)

		mockStore.On("SaveNotification", mock.Anything, mock.Anything).Once().Return(errors.New("table missing"))
		mockPublisher.On("PublishToUser", mock.Anything, "user1", mock.Anything).Once().Return(errors.New("no route"))
		mockEmail.On("EnqueueEmail", mock.Anything, mock.Anything).Once().Return(nil)

		d.Notify(context.Background(), "user1", "hello", "")
		d.Wait()

		mockStore.AssertExpectations(t)
		mockPublisher.AssertExpectations(t)
		mockEmail.AssertExpectations(t)
	})

	t.Run("Cancelled Caller Context", func(t *testing.T) {
		mockStore := new(storage_mocks.NotificationStore)
		d := NewDispatcher(mockStore, nil, nil)

		mockStore.On("SaveNotification", mock.MatchedBy(func(ctx context.Context) bool {
			return ctx.Err() == nil
		}), mock.Anything).Once().Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d.Notify(ctx, "user1", "hello", "")
		d.Wait()

		mockStore.AssertExpectations(t)
	})
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	r.Notify(context.Background(), "a", "one", "")
	r.Notify(context.Background(), "b", "two", "/x")

	assert.Len(t, r.Sent(), 2)
	assert.Equal(t, []Sent{{UserID: "b", Message: "two", Link: "/x"}}, r.For("b"))
}
