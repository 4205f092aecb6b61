package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

const entryColumns = `id, coupon_id, amount, ts, source, reference, location, detail, recorded_at`

func (s *Store) ListLedgerEntries(ctx context.Context, couponID string) ([]models.LedgerEntry, error) {
	return listEntries(ctx, s.db, couponID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listEntries(ctx context.Context, db querier, couponID string) ([]models.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE coupon_id = $1 ORDER BY ts, id`, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.Id, &e.CouponId, &e.Amount, &e.Timestamp, &e.Source, &e.Reference,
			&e.Location, &e.Detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		utc(&e.Timestamp)
		utc(&e.RecordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertEntries(ctx context.Context, tx *sql.Tx, entries []models.LedgerEntry) error {
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.Id, e.CouponId, e.Amount, e.Timestamp, string(e.Source), e.Reference, e.Location, e.Detail, e.RecordedAt); err != nil {
			return fmt.Errorf("failed to insert ledger entry %s: %w", e.Id, err)
		}
	}
	return nil
}

// AppendLedgerEntries holds the coupon row lock while it replays the ledger, so the dedup
// check, the inserts and the used_value update see one consistent state.
func (s *Store) AppendLedgerEntries(ctx context.Context, couponID string, entries []models.LedgerEntry, guard storage.AppendGuard, eval lifecycle.EvaluateFunc) (*storage.AppendResult, error) {
	if len(entries) > storage.MaxAppendBatch {
		return nil, fmt.Errorf("append batch of %d exceeds %d entries", len(entries), storage.MaxAppendBatch)
	}

	result := &storage.AppendResult{}
	now := time.Now().UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCoupon(ctx, tx, couponID)
		if err != nil {
			return err
		}
		existing, err := listEntries(ctx, tx, couponID)
		if err != nil {
			return err
		}

		recorded := make(map[string]struct{}, len(existing))
		var total int64
		for _, e := range existing {
			recorded[e.Id] = struct{}{}
			total += e.Amount
		}
		var delta int64
		for _, e := range entries {
			if _, dup := recorded[e.Id]; dup {
				result.Duplicates++
				continue
			}
			recorded[e.Id] = struct{}{}
			result.Appended = append(result.Appended, e)
			delta += e.Amount
		}
		total += delta
		if err := guard.Check(c, delta, total); err != nil {
			return err
		}

		result.Evaluation = eval(*c, total)
		result.Coupon = c
		if !result.Evaluation.Changed && len(result.Appended) == 0 {
			return nil
		}

		if err := insertEntries(ctx, tx, result.Appended); err != nil {
			return err
		}
		res, err := applyEvaluation(ctx, tx, couponID, c.Version, result.Evaluation, now)
		if err != nil {
			return fmt.Errorf("failed to update coupon: %w", err)
		}
		if err := affected(res, storage.ErrVersionConflict); err != nil {
			return err
		}
		result.Evaluation.Apply(c)
		c.Version++
		c.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
