// Package notify delivers user-facing messages produced by coupon lifecycle changes and
// handshake transitions. Delivery is best-effort: failures are logged and counted, never
// returned to the operation that triggered them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/chris/coupon-exchange/pkg/metrics"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/queue"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/chris/coupon-exchange/pkg/websockets"
	"github.com/google/uuid"
)

// Notifier is the port the core produces notifications through.
type Notifier interface {
	Notify(ctx context.Context, userID, message, link string)
}

const deliveryTimeout = 10 * time.Second

// Dispatcher records each notification, pushes it to the user's live connections and
// enqueues an email, asynchronously.
type Dispatcher struct {
	store     storage.NotificationStore
	publisher websockets.Publisher
	email     queue.EmailEnqueuer
	wg        sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. publisher and email may be nil.
func NewDispatcher(store storage.NotificationStore, publisher websockets.Publisher, email queue.EmailEnqueuer) *Dispatcher {
	return &Dispatcher{store: store, publisher: publisher, email: email}
}

// Make sure we conform to the interface
var _ Notifier = (*Dispatcher)(nil)

// Notify schedules delivery and returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, userID, message, link string) {
	n := models.Notification{
		Id:        newNotificationID(),
		UserId:    userID,
		Message:   message,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		d.deliver(deliverCtx, n)
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, n models.Notification) {
	if err := d.store.SaveNotification(ctx, &n); err != nil {
		fail("record", n, err)
	}

	if d.publisher != nil {
		msg := websockets.Message{Type: websockets.MessageTypeNotification, Payload: n}
		if err := d.publisher.PublishToUser(ctx, n.UserId, msg); err != nil {
			fail("websocket", n, err)
		}
	}

	if d.email != nil {
		job := queue.EmailJob{NotificationId: n.Id, UserId: n.UserId, Message: n.Message, Link: n.Link}
		if err := d.email.EnqueueEmail(ctx, job); err != nil {
			fail("email", n, err)
		}
	}
}

func fail(channel string, n models.Notification, err error) {
	metrics.NotificationFailures.WithLabelValues(channel).Inc()
	slog.Error("notification delivery failed", "channel", channel, "notification_id", n.Id, "user_id", n.UserId, "error", err)
}

func newNotificationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// LogNotifier writes notifications to the structured log only.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, userID, message, link string) {
	slog.Info("notification", "user_id", userID, "message", message, "link", link)
}
