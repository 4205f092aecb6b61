package storage

import (
	"context"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
)

// MaxAppendBatch is the largest number of entries AppendLedgerEntries accepts in one call.
// DynamoDB caps a TransactWriteItems call at 100 items and one of them is the coupon update.
const MaxAppendBatch = 90

// AppendResult describes a committed append.
type AppendResult struct {
	Coupon     *models.Coupon
	Appended   []models.LedgerEntry
	Duplicates int
	Evaluation lifecycle.Result
}

// AppendGuard is checked against the coupon state read inside the atomic append. The zero
// value accepts any append, as reconciled external usage must always be recorded.
type AppendGuard struct {
	// OwnerId marks the append as a manual change by this owner. It is refused while the
	// coupon belongs to someone else or has a pending transaction, and when new usage would
	// push used_value past the coupon's value.
	OwnerId string
}

// Check validates an append that adds delta to the ledger, giving total once committed.
func (g AppendGuard) Check(c *models.Coupon, delta, total int64) error {
	if g.OwnerId == "" {
		return nil
	}
	if c.OwnerId != g.OwnerId {
		return ErrNotOwner
	}
	if c.PendingTransactionId != "" {
		return ErrCouponPending
	}
	if delta > 0 && total > c.Value {
		return ErrUsageExceedsValue
	}
	return nil
}

// LedgerReader defines the interface for reading ledger data.
type LedgerReader interface {
	// ListLedgerEntries retrieves every entry of a coupon, oldest first.
	ListLedgerEntries(ctx context.Context, couponID string) ([]models.LedgerEntry, error)
}

// LedgerWriter appends to the ledger.
type LedgerWriter interface {
	// AppendLedgerEntries skips entries whose ID is already recorded, appends the rest,
	// replays the ledger into the coupon's used_value and persists eval's result, all in one
	// atomic write that guard must accept. An empty batch recomputes and re-evaluates without
	// appending.
	AppendLedgerEntries(ctx context.Context, couponID string, entries []models.LedgerEntry, guard AppendGuard, eval lifecycle.EvaluateFunc) (*AppendResult, error)
}

// LedgerStore combines the reader and writer interfaces.
type LedgerStore interface {
	LedgerReader
	LedgerWriter
}
