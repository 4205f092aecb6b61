package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/queue"
	"github.com/chris/coupon-exchange/pkg/queue/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestEnqueueEmail(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.SQSAPI)
		q := queue.NewSQSQueue(mockClient, "https://sqs.local/emails")

		mockClient.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
			var job queue.EmailJob
			if err := json.Unmarshal([]byte(*in.MessageBody), &job); err != nil {
				return false
			}
			return *in.QueueUrl == "https://sqs.local/emails" && job.UserId == "user1" &&
				*in.MessageAttributes["kind"].StringValue == "email"
		})).Once().Return(&sqs.SendMessageOutput{}, nil)

		err := q.EnqueueEmail(context.Background(), queue.EmailJob{UserId: "user1", Message: "hello"})

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Send Fails", func(t *testing.T) {
		mockClient := new(mocks.SQSAPI)
		q := queue.NewSQSQueue(mockClient, "https://sqs.local/emails")

		mockClient.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		err := q.EnqueueEmail(context.Background(), queue.EmailJob{UserId: "user1"})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send message to SQS")
		mockClient.AssertExpectations(t)
	})
}

func TestEnqueueUsageReport(t *testing.T) {
	mockClient := new(mocks.SQSAPI)
	q := queue.NewSQSQueue(mockClient, "https://sqs.local/usage")
	report := models.UsageReport{
		CouponId: "c1",
		Rows:     []models.UsageRow{{Reference: "card-1", Timestamp: time.Now().UTC(), Location: "Store", UsageAmount: 30}},
	}

	mockClient.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		var got models.UsageReport
		if err := json.Unmarshal([]byte(*in.MessageBody), &got); err != nil {
			return false
		}
		return got.CouponId == "c1" && len(got.Rows) == 1 && *in.MessageAttributes["coupon_id"].StringValue == "c1"
	})).Once().Return(&sqs.SendMessageOutput{}, nil)

	assert.NoError(t, q.EnqueueUsageReport(context.Background(), report))
	mockClient.AssertExpectations(t)
}
