package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/notify"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/chris/coupon-exchange/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, c models.Coupon) (*Service, *memory.Store, *notify.Recorder) {
	t.Helper()
	store := memory.New()
	if c.Status == "" {
		c.Status = models.ACTIVE
	}
	_, err := store.CreateCoupon(context.Background(), &c, nil)
	require.NoError(t, err)
	rec := &notify.Recorder{}
	svc := NewService(store, rec).WithClock(func() time.Time { return now })
	return svc, store, rec
}

func assertReplayInvariant(t *testing.T, store *memory.Store, couponID string) {
	t.Helper()
	c, err := store.GetCoupon(context.Background(), couponID)
	require.NoError(t, err)
	entries, err := store.ListLedgerEntries(context.Background(), couponID)
	require.NoError(t, err)
	assert.Equal(t, Sum(entries), c.UsedValue, "used_value must equal the ledger replay")
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()

	t.Run("Fully Used Notifies Once", func(t *testing.T) {
		svc, store, rec := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Company: "Acme", Value: 100})

		res, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 100, Location: "Main St"})

		require.NoError(t, err)
		assert.Equal(t, models.USED, res.Coupon.Status)
		assert.True(t, res.Coupon.NotifiedUsed)
		require.Len(t, rec.For("u1"), 1)
		assert.Equal(t, "Your Acme coupon has been fully used.", rec.For("u1")[0].Message)
		assertReplayInvariant(t, store, "c1")

		_, err = svc.Repair(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, rec.Sent(), 1)
	})

	t.Run("Partial Usage", func(t *testing.T) {
		svc, store, rec := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		for _, amount := range []int64{10, 25, 5} {
			_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: amount, Timestamp: ptr(now.Add(time.Duration(amount) * time.Minute))})
			require.NoError(t, err)
		}

		c, _ := store.GetCoupon(ctx, "c1")
		assert.Equal(t, int64(40), c.UsedValue)
		assert.Equal(t, models.ACTIVE, c.Status)
		assert.Empty(t, rec.Sent())
		assertReplayInvariant(t, store, "c1")
	})

	t.Run("One Time Coupon Consumed By Any Usage", func(t *testing.T) {
		svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, IsOneTime: true})

		res, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 1})

		require.NoError(t, err)
		assert.Equal(t, models.USED, res.Coupon.Status)
		assert.Equal(t, int64(100), res.Appended[0].Amount)
		assertReplayInvariant(t, store, "c1")
	})

	t.Run("Negative Amount Rejected Before Mutation", func(t *testing.T) {
		svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: -5})

		assert.True(t, errs.Is(err, errs.Validation))
		entries, _ := store.ListLedgerEntries(ctx, "c1")
		assert.Empty(t, entries)
	})

	t.Run("Exceeds Remaining", func(t *testing.T) {
		svc, _, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, UsedValue: 0})

		_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 101})

		assert.True(t, errs.Is(err, errs.Validation))
	})

	t.Run("Not Owner", func(t *testing.T) {
		svc, _, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		_, err := svc.RecordUsage(ctx, "u2", "c1", UsageInput{Amount: 5})

		assert.True(t, errs.Is(err, errs.Forbidden))
	})

	t.Run("Unknown Coupon", func(t *testing.T) {
		svc, _, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		_, err := svc.RecordUsage(ctx, "u1", "missing", UsageInput{Amount: 5})

		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestRecordRecharge(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

	_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 100})
	require.NoError(t, err)

	res, err := svc.RecordRecharge(ctx, "u1", "c1", RechargeInput{Amount: 30, Detail: "top up"})

	require.NoError(t, err)
	assert.Equal(t, int64(70), res.Coupon.UsedValue)
	assert.Equal(t, models.ACTIVE, res.Coupon.Status)
	assert.True(t, res.Coupon.NotifiedUsed, "one-shot flags are never cleared")
	assert.Equal(t, int64(-30), res.Appended[0].Amount)
	assertReplayInvariant(t, store, "c1")
}

func TestMarkFullyUsed(t *testing.T) {
	ctx := context.Background()

	t.Run("Appends Remaining Balance", func(t *testing.T) {
		svc, store, rec := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})
		_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 35})
		require.NoError(t, err)

		res, err := svc.MarkFullyUsed(ctx, "u1", "c1")

		require.NoError(t, err)
		require.Len(t, res.Appended, 1)
		assert.Equal(t, int64(65), res.Appended[0].Amount)
		assert.Equal(t, models.USED, res.Coupon.Status)
		assert.Len(t, rec.Sent(), 1)
		assertReplayInvariant(t, store, "c1")
	})

	t.Run("No Op When Consumed", func(t *testing.T) {
		svc, store, rec := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})
		_, err := svc.MarkFullyUsed(ctx, "u1", "c1")
		require.NoError(t, err)

		res, err := svc.MarkFullyUsed(ctx, "u1", "c1")

		require.NoError(t, err)
		assert.Empty(t, res.Appended)
		entries, _ := store.ListLedgerEntries(ctx, "c1")
		assert.Len(t, entries, 1)
		assert.Len(t, rec.Sent(), 1)
	})
}

func TestManualEntriesWhilePending(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	pending := models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, IsForSale: true, PendingTransactionId: "t1"}

	manual := map[string]func(svc *Service) error{
		"Usage": func(svc *Service) error {
			_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 10})
			return err
		},
		"Recharge": func(svc *Service) error {
			_, err := svc.RecordRecharge(ctx, "u1", "c1", RechargeInput{Amount: 10})
			return err
		},
		"Mark Fully Used": func(svc *Service) error {
			_, err := svc.MarkFullyUsed(ctx, "u1", "c1")
			return err
		},
	}
	for name, write := range manual {
		t.Run(name, func(t *testing.T) {
			svc, store, rec := setup(t, pending)

			err := write(svc)

			assert.ErrorIs(t, err, storage.ErrCouponPending)
			assert.True(t, errs.Is(err, errs.Conflict))
			entries, _ := store.ListLedgerEntries(ctx, "c1")
			assert.Empty(t, entries)
			assert.Empty(t, rec.Sent())
		})
	}

	t.Run("Pending Set After The Read", func(t *testing.T) {
		store := &staleReadStore{Store: memory.New(), snapshot: models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, Status: models.ACTIVE}}
		_, err := store.CreateCoupon(ctx, &pending, nil)
		require.NoError(t, err)
		svc := NewService(store, &notify.Recorder{}).WithClock(func() time.Time { return now })

		_, err = svc.MarkFullyUsed(ctx, "u1", "c1")

		assert.ErrorIs(t, err, storage.ErrCouponPending)
		entries, _ := store.ListLedgerEntries(ctx, "c1")
		assert.Empty(t, entries)
	})

	t.Run("Reported Usage Is Still Recorded", func(t *testing.T) {
		svc, store, _ := setup(t, pending)

		res, err := svc.Reconcile(ctx, models.UsageReport{CouponId: "c1", Rows: []models.UsageRow{
			{Reference: "card-1", Timestamp: day, Location: "Store A", UsageAmount: 20},
		}})

		require.NoError(t, err)
		assert.Equal(t, int64(20), res.Coupon.UsedValue)
		assertReplayInvariant(t, store, "c1")
	})
}

func TestUsageNeverExceedsValue(t *testing.T) {
	ctx := context.Background()

	t.Run("Balance Consumed After The Read", func(t *testing.T) {
		store := &staleReadStore{Store: memory.New(), snapshot: models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, Status: models.ACTIVE}}
		_, err := store.CreateCoupon(ctx, &models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, Status: models.ACTIVE}, nil)
		require.NoError(t, err)
		svc := NewService(store, &notify.Recorder{}).WithClock(func() time.Time { return now })
		_, err = svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 90})
		require.NoError(t, err)

		_, err = svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 20, Timestamp: ptr(now.Add(time.Minute))})

		assert.ErrorIs(t, err, storage.ErrUsageExceedsValue)
		assert.True(t, errs.Is(err, errs.Validation))
		c, _ := store.Store.GetCoupon(ctx, "c1")
		assert.Equal(t, int64(90), c.UsedValue)
	})

	t.Run("Concurrent Usage", func(t *testing.T) {
		svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ok  int
			bad int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ts := now.Add(time.Duration(i) * time.Second)
				_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 10, Timestamp: &ts})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
				} else if errs.Is(err, errs.Validation) {
					bad++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 10, ok)
		assert.Equal(t, 10, bad)
		c, _ := store.GetCoupon(ctx, "c1")
		assert.Equal(t, int64(100), c.UsedValue)
		assertReplayInvariant(t, store, "c1")
	})
}

// staleReadStore answers GetCoupon with a fixed snapshot, as a read that raced a write would.
type staleReadStore struct {
	*memory.Store
	snapshot models.Coupon
}

func (s *staleReadStore) GetCoupon(_ context.Context, _ string) (*models.Coupon, error) {
	c := s.snapshot
	return &c, nil
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	report := models.UsageReport{
		CouponId: "c1",
		Rows: []models.UsageRow{
			{Reference: "card-1", Timestamp: day, Location: "Store A", UsageAmount: 20},
			{Reference: "card-1", Timestamp: day.Add(time.Hour), Location: "Store B", UsageAmount: 15},
			{Reference: "card-1", Timestamp: day.Add(2 * time.Hour), Location: "Online", RechargeAmount: 10},
			{Reference: "card-1", Timestamp: day.Add(3 * time.Hour), Location: "Noise"},
		},
	}

	t.Run("Idempotent Over Overlapping Reports", func(t *testing.T) {
		svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		first, err := svc.Reconcile(ctx, report)
		require.NoError(t, err)
		assert.Len(t, first.Appended, 3)
		assert.Equal(t, int64(25), first.Coupon.UsedValue)

		overlap := models.UsageReport{CouponId: "c1", Rows: append(report.Rows[1:], models.UsageRow{
			Reference: "card-1", Timestamp: day.Add(24 * time.Hour), Location: "Store A", UsageAmount: 5,
		})}
		second, err := svc.Reconcile(ctx, overlap)
		require.NoError(t, err)
		assert.Len(t, second.Appended, 1)
		assert.Equal(t, 2, second.Duplicates)
		assert.Equal(t, int64(30), second.Coupon.UsedValue)
		assertReplayInvariant(t, store, "c1")
	})

	t.Run("Duplicate Rows Within One Report", func(t *testing.T) {
		svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})
		dup := models.UsageReport{CouponId: "c1", Rows: []models.UsageRow{report.Rows[0], report.Rows[0]}}

		res, err := svc.Reconcile(ctx, dup)

		require.NoError(t, err)
		assert.Len(t, res.Appended, 1)
		assert.Equal(t, 1, res.Duplicates)
		assertReplayInvariant(t, store, "c1")
	})

	t.Run("Large Report Spans Batches", func(t *testing.T) {
		svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 1_000_000})
		big := models.UsageReport{CouponId: "c1"}
		for i := 0; i < storage.MaxAppendBatch*2+5; i++ {
			big.Rows = append(big.Rows, models.UsageRow{Reference: "card-1", Timestamp: day.Add(time.Duration(i) * time.Minute), Location: fmt.Sprintf("POS %d", i), UsageAmount: 1})
		}

		res, err := svc.Reconcile(ctx, big)

		require.NoError(t, err)
		assert.Len(t, res.Appended, len(big.Rows))
		assert.Equal(t, int64(len(big.Rows)), res.Coupon.UsedValue)
		assertReplayInvariant(t, store, "c1")
	})

	t.Run("Invalid Row", func(t *testing.T) {
		svc, _, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 100})

		_, err := svc.Reconcile(ctx, models.UsageReport{CouponId: "c1", Rows: []models.UsageRow{{UsageAmount: 5}}})

		assert.True(t, errs.Is(err, errs.Validation))
	})
}

func TestScenario_ExpiredThenUsed(t *testing.T) {
	ctx := context.Background()
	svc, store, rec := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Company: "Acme", Value: 100, Expiration: "2026-03-09"})

	res, err := svc.Repair(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.EXPIRED, res.Coupon.Status)
	require.Len(t, rec.Sent(), 1)
	assert.Equal(t, "Your Acme coupon has expired.", rec.Sent()[0].Message)

	_, err = svc.Repair(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, rec.Sent(), 1)

	res, err = svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, models.USED, res.Coupon.Status)
	require.Len(t, rec.Sent(), 2)
	assert.Equal(t, "Your Acme coupon has been fully used.", rec.Sent()[1].Message)
	assertReplayInvariant(t, store, "c1")
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := setup(t, models.Coupon{Id: "c1", OwnerId: "u1", Value: 10_000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts := now.Add(time.Duration(i) * time.Second)
			_, err := svc.RecordUsage(ctx, "u1", "c1", UsageInput{Amount: 3, Timestamp: &ts})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, _ := store.GetCoupon(ctx, "c1")
	assert.Equal(t, int64(150), c.UsedValue)
	assertReplayInvariant(t, store, "c1")
}

func TestRetriesOnVersionConflict(t *testing.T) {
	store := &conflictingStore{Store: memory.New(), conflicts: 2}
	c := models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, Status: models.ACTIVE}
	_, err := store.CreateCoupon(context.Background(), &c, nil)
	require.NoError(t, err)
	svc := NewService(store, &notify.Recorder{}).WithClock(func() time.Time { return now })

	res, err := svc.RecordUsage(context.Background(), "u1", "c1", UsageInput{Amount: 10})

	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Coupon.UsedValue)
	assert.Equal(t, 3, store.calls)
}

func TestGivesUpAfterRepeatedConflicts(t *testing.T) {
	store := &conflictingStore{Store: memory.New(), conflicts: 100}
	c := models.Coupon{Id: "c1", OwnerId: "u1", Value: 100, Status: models.ACTIVE}
	_, err := store.CreateCoupon(context.Background(), &c, nil)
	require.NoError(t, err)
	svc := NewService(store, &notify.Recorder{})

	_, err = svc.RecordUsage(context.Background(), "u1", "c1", UsageInput{Amount: 10})

	assert.ErrorIs(t, err, storage.ErrVersionConflict)
	assert.True(t, errs.Is(err, errs.Conflict))
	assert.Equal(t, maxAttempts, store.calls)
}

type conflictingStore struct {
	*memory.Store
	conflicts int
	calls     int
}

func (s *conflictingStore) AppendLedgerEntries(ctx context.Context, couponID string, entries []models.LedgerEntry, guard storage.AppendGuard, eval lifecycle.EvaluateFunc) (*storage.AppendResult, error) {
	s.calls++
	if s.calls <= s.conflicts {
		return nil, storage.ErrVersionConflict
	}
	return s.Store.AppendLedgerEntries(ctx, couponID, entries, guard, eval)
}

func TestEntryID(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("IST", 2*3600))
	a := EntryID("c1", "card-1", ts, "Store", 20)
	b := EntryID("c1", " card-1 ", ts.UTC(), "Store ", 20)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, EntryID("c1", "card-1", ts, "Store", 21))
	assert.NotEqual(t, a, EntryID("c2", "card-1", ts, "Store", 20))
	assert.Len(t, a, 32)
}

func ptr[T any](v T) *T { return &v }
