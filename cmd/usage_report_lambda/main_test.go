package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context, report models.UsageReport) (*storage.AppendResult, error) {
	args := m.Called(ctx, report)
	res, _ := args.Get(0).(*storage.AppendResult)
	return res, args.Error(1)
}

func message(t *testing.T, id string, report models.UsageReport) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(report)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func couponReport(couponID string) models.UsageReport {
	return models.UsageReport{CouponId: couponID, Rows: []models.UsageRow{
		{Reference: "r1", Timestamp: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), UsageAmount: 100},
	}}
}

func TestHandleRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		rec := new(mockReconciler)
		h := &Handler{Ledger: rec}
		rec.On("Reconcile", mock.Anything, mock.MatchedBy(func(r models.UsageReport) bool { return r.CouponId == "c1" })).
			Return(&storage.AppendResult{Appended: make([]models.LedgerEntry, 1)}, nil)

		resp, err := h.HandleRequest(ctx, events.SQSEvent{Records: []events.SQSMessage{message(t, "m1", couponReport("c1"))}})

		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
		rec.AssertExpectations(t)
	})

	t.Run("Retries Only Failed Messages", func(t *testing.T) {
		rec := new(mockReconciler)
		h := &Handler{Ledger: rec}
		rec.On("Reconcile", mock.Anything, mock.MatchedBy(func(r models.UsageReport) bool { return r.CouponId == "c1" })).
			Return(nil, errors.New("throttled"))
		rec.On("Reconcile", mock.Anything, mock.MatchedBy(func(r models.UsageReport) bool { return r.CouponId == "c2" })).
			Return(&storage.AppendResult{}, nil)

		resp, err := h.HandleRequest(ctx, events.SQSEvent{Records: []events.SQSMessage{
			message(t, "m1", couponReport("c1")),
			message(t, "m2", couponReport("c2")),
		}})

		require.NoError(t, err)
		require.Len(t, resp.BatchItemFailures, 1)
		assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
	})

	t.Run("Drops Rejected Reports", func(t *testing.T) {
		rec := new(mockReconciler)
		h := &Handler{Ledger: rec}
		rec.On("Reconcile", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("failed to get coupon: %w", storage.ErrNotFound)).Once()
		rec.On("Reconcile", mock.Anything, mock.Anything).
			Return(nil, errs.Validationf("ledger.Reconcile", "row 0: timestamp is required")).Once()

		resp, err := h.HandleRequest(ctx, events.SQSEvent{Records: []events.SQSMessage{
			message(t, "m1", couponReport("missing")),
			message(t, "m2", couponReport("c1")),
			{MessageId: "m3", Body: "{not json"},
		}})

		require.NoError(t, err)
		assert.Empty(t, resp.BatchItemFailures)
		rec.AssertNumberOfCalls(t, "Reconcile", 2)
	})
}
