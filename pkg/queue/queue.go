package queue

import (
	"context"

	"github.com/chris/coupon-exchange/pkg/models"
)

// EmailJob is the message a downstream mail worker turns into an email.
// The worker resolves the user's address; the core never sees it.
type EmailJob struct {
	NotificationId string `json:"notification_id"`
	UserId         string `json:"user_id"`
	Message        string `json:"message"`
	Link           string `json:"link,omitempty"`
}

// EmailEnqueuer defines the interface for handing an email to the delivery worker.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, job EmailJob) error
}

// UsageReportEnqueuer defines the interface for deferring a usage report to the usage report lambda.
type UsageReportEnqueuer interface {
	EnqueueUsageReport(ctx context.Context, report models.UsageReport) error
}
