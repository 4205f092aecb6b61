package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/chris/coupon-exchange/pkg/models"
)

// SQSAPI is the subset of the SQS client used by the producers.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue implements the enqueuer interfaces on top of a single SQS queue.
type SQSQueue struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSQueue creates a new SQSQueue.
func NewSQSQueue(client SQSAPI, queueURL string) *SQSQueue {
	return &SQSQueue{
		Client:   client,
		QueueURL: queueURL,
	}
}

// Make sure we conform to the interfaces
var (
	_ EmailEnqueuer       = (*SQSQueue)(nil)
	_ UsageReportEnqueuer = (*SQSQueue)(nil)
)

// EnqueueEmail sends the job to the email queue.
func (q *SQSQueue) EnqueueEmail(ctx context.Context, job EmailJob) error {
	return q.send(ctx, job, map[string]string{"kind": "email"})
}

// EnqueueUsageReport sends the report to the usage report queue.
func (q *SQSQueue) EnqueueUsageReport(ctx context.Context, report models.UsageReport) error {
	return q.send(ctx, report, map[string]string{"kind": "usage-report", "coupon_id": report.CouponId})
}

func (q *SQSQueue) send(ctx context.Context, v any, attrs map[string]string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message for SQS: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.QueueURL),
		MessageBody: aws.String(string(body)),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for name, value := range attrs {
			input.MessageAttributes[name] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(value),
			}
		}
	}

	if _, err := q.Client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("failed to send message to SQS: %w", err)
	}

	return nil
}
