package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T) (*Store, *models.Transaction) {
	t.Helper()
	ctx := context.Background()
	s := New()
	_, err := s.CreateCoupon(ctx, &models.Coupon{
		Id:          "c1",
		OwnerId:     "seller",
		Company:     "Acme",
		Value:       10000,
		AskingPrice: 7000,
		Status:      models.ACTIVE,
		IsForSale:   true,
		IsAvailable: true,
		CreatedAt:   now,
	}, nil)
	require.NoError(t, err)

	tx, err := s.CreateTransaction(ctx, &models.Transaction{
		Id:          "tx-1",
		CouponId:    "c1",
		BuyerId:     "buyer",
		SellerId:    "seller",
		AskingPrice: 7000,
		Status:      models.REQUESTED,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	return s, tx
}

func TestReleaseTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		s, tx := seed(t)
		released := *tx
		released.Status = models.DECLINED

		require.NoError(t, s.ReleaseTransaction(ctx, &released, models.REQUESTED))

		c, err := s.GetCoupon(ctx, "c1")
		require.NoError(t, err)
		assert.Empty(t, c.PendingTransactionId)
		assert.True(t, c.IsAvailable)
	})

	t.Run("Coupon Held By Another Transaction", func(t *testing.T) {
		s, tx := seed(t)
		c := s.coupons["c1"]
		c.PendingTransactionId = "tx-2"
		s.coupons["c1"] = c
		released := *tx
		released.Status = models.CANCELLED

		err := s.ReleaseTransaction(ctx, &released, models.REQUESTED)

		assert.ErrorIs(t, err, storage.ErrStaleTransaction)
		stored, err := s.GetTransaction(ctx, tx.Id)
		require.NoError(t, err)
		assert.Equal(t, models.REQUESTED, stored.Status)
		got, err := s.GetCoupon(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "tx-2", got.PendingTransactionId)
		assert.False(t, got.IsAvailable)
	})
}
