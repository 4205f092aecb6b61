// Package ledger records coupon usage as an append-only log and keeps each coupon's
// used_value equal to the replayed sum of its entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/metrics"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/notify"
	"github.com/chris/coupon-exchange/pkg/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxAttempts = 4

var tracer = otel.Tracer("github.com/chris/coupon-exchange/pkg/ledger")

// Store is the storage the ledger service needs.
type Store interface {
	storage.CouponReader
	storage.LedgerStore
}

// Service appends to the ledger and re-evaluates the affected coupon.
type Service struct {
	store    Store
	notifier notify.Notifier
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, notifier notify.Notifier) *Service {
	return &Service{store: store, notifier: notifier, now: time.Now}
}

// WithClock replaces the service clock. Used in tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordUsage appends a manual usage entry. A one-time coupon is consumed in full by any usage.
// Manual entries are refused while a transaction is pending on the coupon.
func (s *Service) RecordUsage(ctx context.Context, userID, couponID string, in UsageInput) (*storage.AppendResult, error) {
	const op = "ledger.RecordUsage"
	if err := in.Validate(op); err != nil {
		return nil, err
	}
	c, err := s.manualCoupon(ctx, op, userID, couponID)
	if err != nil {
		return nil, err
	}

	amount := in.Amount
	remaining := c.Remaining()
	if remaining <= 0 {
		return nil, errs.Validationf(op, "coupon %s has no remaining value", couponID)
	}
	if c.IsOneTime {
		amount = remaining
	} else if amount > remaining {
		return nil, errs.Validationf(op, "usage of %d exceeds remaining value %d", amount, remaining)
	}

	ts := s.now().UTC()
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	entry := NewEntry(couponID, models.SourceManual, "", ts, in.Location, amount, in.Detail, s.now().UTC())
	return s.appendEntries(ctx, couponID, []models.LedgerEntry{entry}, storage.AppendGuard{OwnerId: userID})
}

// RecordRecharge appends a manual recharge, a negative entry that restores value.
func (s *Service) RecordRecharge(ctx context.Context, userID, couponID string, in RechargeInput) (*storage.AppendResult, error) {
	const op = "ledger.RecordRecharge"
	if err := in.Validate(op); err != nil {
		return nil, err
	}
	if _, err := s.manualCoupon(ctx, op, userID, couponID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	entry := NewEntry(couponID, models.SourceManual, "", now, "", -in.Amount, in.Detail, now)
	return s.appendEntries(ctx, couponID, []models.LedgerEntry{entry}, storage.AppendGuard{OwnerId: userID})
}

// MarkFullyUsed appends one entry equal to the remaining balance. Nothing is appended
// when the coupon is already consumed.
func (s *Service) MarkFullyUsed(ctx context.Context, userID, couponID string) (*storage.AppendResult, error) {
	const op = "ledger.MarkFullyUsed"
	c, err := s.manualCoupon(ctx, op, userID, couponID)
	if err != nil {
		return nil, err
	}

	remaining := c.Remaining()
	if remaining <= 0 {
		return &storage.AppendResult{Coupon: c}, nil
	}

	now := s.now().UTC()
	entry := NewEntry(couponID, models.SourceManual, "", now, "", remaining, "marked as fully used", now)
	return s.appendEntries(ctx, couponID, []models.LedgerEntry{entry}, storage.AppendGuard{OwnerId: userID})
}

// Reconcile turns an external usage report into candidate entries and appends the ones not
// already recorded. Resubmitting an overlapping report appends nothing new. Reported usage is
// recorded even while a transaction is pending; that sale can then no longer complete.
func (s *Service) Reconcile(ctx context.Context, report models.UsageReport) (*storage.AppendResult, error) {
	const op = "ledger.Reconcile"
	entries, err := EntriesFromReport(op, report, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCoupon(ctx, report.CouponId); err != nil {
		return nil, fmt.Errorf("failed to get coupon for usage report: %w", err)
	}
	return s.Append(ctx, report.CouponId, entries)
}

// Append writes entries in batches. Each batch deduplicates, appends, replays the ledger and
// re-evaluates the coupon atomically; a batch that loses an optimistic race is retried
// against fresh state. Lifecycle notifications go out after each batch commits.
func (s *Service) Append(ctx context.Context, couponID string, entries []models.LedgerEntry) (*storage.AppendResult, error) {
	return s.appendEntries(ctx, couponID, entries, storage.AppendGuard{})
}

func (s *Service) appendEntries(ctx context.Context, couponID string, entries []models.LedgerEntry, guard storage.AppendGuard) (result *storage.AppendResult, err error) {
	ctx, span := tracer.Start(ctx, "ledger.Append", trace.WithAttributes(
		attribute.String("coupon_id", couponID),
		attribute.Int("entries", len(entries)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result = &storage.AppendResult{}
	for start := 0; start == 0 || start < len(entries); start += storage.MaxAppendBatch {
		end := min(start+storage.MaxAppendBatch, len(entries))
		batch, err := s.appendBatch(ctx, couponID, entries[start:end], guard)
		if err != nil {
			return nil, err
		}

		result.Coupon = batch.Coupon
		result.Appended = append(result.Appended, batch.Appended...)
		result.Duplicates += batch.Duplicates
		result.Evaluation = batch.Evaluation

		s.record(ctx, batch)
	}
	return result, nil
}

func (s *Service) appendBatch(ctx context.Context, couponID string, batch []models.LedgerEntry, guard storage.AppendGuard) (*storage.AppendResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := s.store.AppendLedgerEntries(ctx, couponID, batch, guard, lifecycle.At(s.now()))
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) && !errors.Is(err, storage.ErrDuplicateLedgerEntry) {
			return nil, fmt.Errorf("failed to append ledger entries: %w", err)
		}
		lastErr = err
		slog.Debug("ledger append conflicted, retrying", "coupon_id", couponID, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("failed to append ledger entries after %d attempts: %w", maxAttempts, lastErr)
}

func (s *Service) record(ctx context.Context, batch *storage.AppendResult) {
	for _, e := range batch.Appended {
		metrics.LedgerEntriesAppended.WithLabelValues(string(e.Source)).Inc()
	}
	metrics.LedgerDuplicatesSkipped.Add(float64(batch.Duplicates))

	if len(batch.Evaluation.Intents) > 0 {
		metrics.CouponStatusChanges.WithLabelValues(string(batch.Evaluation.Status)).Inc()
	}
	if batch.Coupon != nil {
		slog.Info("ledger updated",
			"coupon_id", batch.Coupon.Id,
			"appended", len(batch.Appended),
			"duplicates", batch.Duplicates,
			"used_value", batch.Coupon.UsedValue,
			"status", batch.Coupon.Status,
		)
	}
	notify.DeliverIntents(ctx, s.notifier, batch.Evaluation.Intents)
}

// Recompute replays the coupon's ledger.
func (s *Service) Recompute(ctx context.Context, couponID string) (int64, error) {
	entries, err := s.store.ListLedgerEntries(ctx, couponID)
	if err != nil {
		return 0, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return Sum(entries), nil
}

// Repair recomputes used_value from the ledger and re-evaluates the coupon without appending.
func (s *Service) Repair(ctx context.Context, couponID string) (*storage.AppendResult, error) {
	return s.Append(ctx, couponID, nil)
}

// Entries returns the coupon's ledger history to its owner.
func (s *Service) Entries(ctx context.Context, userID, couponID string) ([]models.LedgerEntry, error) {
	if _, err := s.ownedCoupon(ctx, "ledger.Entries", userID, couponID); err != nil {
		return nil, err
	}
	entries, err := s.store.ListLedgerEntries(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// CheckOwner returns a Forbidden error unless userID owns the coupon. Used before a usage
// report is queued for asynchronous reconciliation.
func (s *Service) CheckOwner(ctx context.Context, userID, couponID string) error {
	_, err := s.ownedCoupon(ctx, "ledger.CheckOwner", userID, couponID)
	return err
}

// manualCoupon is ownedCoupon for owner-entered ledger changes, which wait until no
// transaction is pending. The store re-checks both inside the atomic append.
func (s *Service) manualCoupon(ctx context.Context, op, userID, couponID string) (*models.Coupon, error) {
	c, err := s.ownedCoupon(ctx, op, userID, couponID)
	if err != nil {
		return nil, err
	}
	if c.PendingTransactionId != "" {
		return nil, fmt.Errorf("%s: coupon %s: %w", op, couponID, storage.ErrCouponPending)
	}
	return c, nil
}

func (s *Service) ownedCoupon(ctx context.Context, op, userID, couponID string) (*models.Coupon, error) {
	c, err := s.store.GetCoupon(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	if c.OwnerId != userID {
		return nil, errs.Forbiddenf(op, "coupon %s is not owned by %s", couponID, userID)
	}
	return c, nil
}

// Sum is the ledger replay.
func Sum(entries []models.LedgerEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}
