package postgres

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	t.Run("Serialization Failure", func(t *testing.T) {
		err := translate(fmt.Errorf("commit tx: %w", &pq.Error{Code: pgSerializationFailedCode}))
		assert.ErrorIs(t, err, storage.ErrVersionConflict)
	})

	t.Run("Duplicate Ledger Entry", func(t *testing.T) {
		err := translate(&pq.Error{Code: pgUniqueViolationCode, Constraint: ledgerPrimaryKey})
		assert.ErrorIs(t, err, storage.ErrDuplicateLedgerEntry)
	})

	t.Run("Other Unique Violation", func(t *testing.T) {
		pqErr := &pq.Error{Code: pgUniqueViolationCode, Constraint: "coupons_pkey"}
		assert.Equal(t, pqErr, translate(pqErr))
	})
}

// newTestStore connects to TEST_DATABASE_URL and skips the test when it is not set.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func listedCoupon(owner string) *models.Coupon {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Coupon{
		Id:          uuid.NewString(),
		OwnerId:     owner,
		Company:     "Acme",
		Value:       10000,
		Cost:        8000,
		AskingPrice: 7000,
		Status:      models.ACTIVE,
		IsForSale:   true,
		IsAvailable: true,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestLedgerAppend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c := listedCoupon(uuid.NewString())
	_, err := store.CreateCoupon(ctx, c, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	entry := models.LedgerEntry{Id: uuid.NewString(), CouponId: c.Id, Amount: 4000, Timestamp: now, Source: models.SourceManual, RecordedAt: now}

	res, err := store.AppendLedgerEntries(ctx, c.Id, []models.LedgerEntry{entry}, storage.AppendGuard{}, lifecycle.At(now))
	require.NoError(t, err)
	assert.Len(t, res.Appended, 1)
	assert.Equal(t, int64(4000), res.Coupon.UsedValue)

	res, err = store.AppendLedgerEntries(ctx, c.Id, []models.LedgerEntry{entry}, storage.AppendGuard{}, lifecycle.At(now))
	require.NoError(t, err)
	assert.Empty(t, res.Appended)
	assert.Equal(t, 1, res.Duplicates)

	stored, err := store.GetCoupon(ctx, c.Id)
	require.NoError(t, err)
	entries, err := store.ListLedgerEntries(ctx, c.Id)
	require.NoError(t, err)
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	assert.Equal(t, total, stored.UsedValue)
}

func TestManualAppendGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seller := uuid.NewString()
	c := listedCoupon(seller)
	_, err := store.CreateCoupon(ctx, c, nil)
	require.NoError(t, err)
	now := time.Now().UTC()
	guard := storage.AppendGuard{OwnerId: seller}

	t.Run("Usage Past Value", func(t *testing.T) {
		entry := models.LedgerEntry{Id: uuid.NewString(), CouponId: c.Id, Amount: 10001, Timestamp: now, Source: models.SourceManual, RecordedAt: now}
		_, err := store.AppendLedgerEntries(ctx, c.Id, []models.LedgerEntry{entry}, guard, lifecycle.At(now))
		assert.ErrorIs(t, err, storage.ErrUsageExceedsValue)
	})

	t.Run("Pending Transaction", func(t *testing.T) {
		tx := &models.Transaction{
			Id: uuid.NewString(), CouponId: c.Id, BuyerId: uuid.NewString(), SellerId: seller,
			Status: models.REQUESTED, AskingPrice: c.AskingPrice, Version: 1, CreatedAt: now, UpdatedAt: now,
		}
		_, err := store.CreateTransaction(ctx, tx)
		require.NoError(t, err)

		entry := models.LedgerEntry{Id: uuid.NewString(), CouponId: c.Id, Amount: 100, Timestamp: now, Source: models.SourceManual, RecordedAt: now}
		_, err = store.AppendLedgerEntries(ctx, c.Id, []models.LedgerEntry{entry}, guard, lifecycle.At(now))
		assert.ErrorIs(t, err, storage.ErrCouponPending)

		entries, err := store.ListLedgerEntries(ctx, c.Id)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestSingleBuyerWinsAndCompletes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seller := uuid.NewString()
	c := listedCoupon(seller)
	_, err := store.CreateCoupon(ctx, c, nil)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		winner atomic.Pointer[models.Transaction]
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now().UTC()
			tx := &models.Transaction{
				Id: uuid.NewString(), CouponId: c.Id, BuyerId: uuid.NewString(), SellerId: seller,
				Status: models.REQUESTED, AskingPrice: c.AskingPrice, Version: 1, CreatedAt: now, UpdatedAt: now,
			}
			if _, err := store.CreateTransaction(ctx, tx); err == nil {
				wins.Add(1)
				winner.Store(tx)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	tx := winner.Load()
	now := time.Now().UTC()
	tx.Status = models.AWAITING_SELLER_CONFIRM
	tx.SellerApproved, tx.BuyerConfirmed, tx.CodeProvisioned = true, true, true
	tx.UpdatedAt = now
	require.NoError(t, store.UpdateTransaction(ctx, tx, models.REQUESTED))

	tx.Status = models.COMPLETED
	tx.SellerConfirmed = true
	coupon, _, err := store.CompleteTransaction(ctx, tx, models.AWAITING_SELLER_CONFIRM, lifecycle.At(now))
	require.NoError(t, err)
	assert.Equal(t, tx.BuyerId, coupon.OwnerId)
	assert.Equal(t, int64(7000), coupon.Cost)

	_, _, err = store.CompleteTransaction(ctx, tx, models.AWAITING_SELLER_CONFIRM, lifecycle.At(now))
	assert.ErrorIs(t, err, storage.ErrVersionConflict)

	stored, err := store.GetTransaction(ctx, tx.Id)
	require.NoError(t, err)
	assert.Equal(t, models.COMPLETED, stored.Status)
}
