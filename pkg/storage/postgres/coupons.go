package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

const couponColumns = `id, owner_id, company, description, secret, value, cost, asking_price, used_value,
	status, expiration, is_for_sale, is_available, is_one_time, notified_used, notified_expired,
	pending_transaction_id, version, created_at, updated_at`

func scanCoupon(row scanner) (*models.Coupon, error) {
	var c models.Coupon
	var pending sql.NullString
	err := row.Scan(&c.Id, &c.OwnerId, &c.Company, &c.Description, &c.Secret, &c.Value, &c.Cost,
		&c.AskingPrice, &c.UsedValue, &c.Status, &c.Expiration, &c.IsForSale, &c.IsAvailable,
		&c.IsOneTime, &c.NotifiedUsed, &c.NotifiedExpired, &pending, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.PendingTransactionId = pending.String
	utc(&c.CreatedAt)
	utc(&c.UpdatedAt)
	return &c, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) GetCoupon(ctx context.Context, couponID string) (*models.Coupon, error) {
	c, err := scanCoupon(s.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, couponID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("coupon %s: %w", couponID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return c, nil
}

// lockCoupon reads the coupon row and holds its lock until tx ends.
func lockCoupon(ctx context.Context, tx *sql.Tx, couponID string) (*models.Coupon, error) {
	c, err := scanCoupon(tx.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1 FOR UPDATE`, couponID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("coupon %s: %w", couponID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock coupon: %w", err)
	}
	return c, nil
}

func (s *Store) ListCouponsByOwner(ctx context.Context, ownerID string) ([]models.Coupon, error) {
	return s.listCoupons(ctx, `owner_id = $1`, ownerID)
}

func (s *Store) ListCouponsForSale(ctx context.Context) ([]models.Coupon, error) {
	return s.listCoupons(ctx, `is_for_sale AND status = $1`, string(models.ACTIVE))
}

func (s *Store) ListCouponsByStatus(ctx context.Context, status models.CouponStatus) ([]models.Coupon, error) {
	return s.listCoupons(ctx, `status = $1`, string(status))
}

func (s *Store) listCoupons(ctx context.Context, where string, args ...any) ([]models.Coupon, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func (s *Store) CreateCoupon(ctx context.Context, c *models.Coupon, opening []models.LedgerEntry) (*models.Coupon, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO coupons (`+couponColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			c.Id, c.OwnerId, c.Company, c.Description, c.Secret, c.Value, c.Cost, c.AskingPrice, c.UsedValue,
			string(c.Status), c.Expiration, c.IsForSale, c.IsAvailable, c.IsOneTime, c.NotifiedUsed,
			c.NotifiedExpired, nullable(c.PendingTransactionId), c.Version, c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert coupon: %w", err)
		}
		return insertEntries(ctx, tx, opening)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateListing locks the coupon so a pending transaction and a stale version can be told apart.
func (s *Store) UpdateListing(ctx context.Context, c *models.Coupon) error {
	now := c.UpdatedAt
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stored, err := lockCoupon(ctx, tx, c.Id)
		if err != nil {
			return err
		}
		if stored.PendingTransactionId != "" {
			return storage.ErrCouponPending
		}
		if stored.Version != c.Version {
			return storage.ErrVersionConflict
		}
		_, err = tx.ExecContext(ctx, `UPDATE coupons
			SET is_for_sale = $2, is_available = $3, asking_price = $4, updated_at = $5, version = version + 1
			WHERE id = $1`,
			c.Id, c.IsForSale, c.IsAvailable, c.AskingPrice, now)
		return err
	})
	if err != nil {
		return err
	}
	c.Version++
	return nil
}

func (s *Store) ApplyStatus(ctx context.Context, c *models.Coupon, res lifecycle.Result) error {
	now := time.Now().UTC()
	result, err := applyEvaluation(ctx, s.db, c.Id, c.Version, res, now)
	if err != nil {
		return translate(fmt.Errorf("failed to apply coupon status: %w", err))
	}
	if err := affected(result, storage.ErrVersionConflict); err != nil {
		return err
	}
	res.Apply(c)
	c.Version++
	c.UpdatedAt = now
	return nil
}

func applyEvaluation(ctx context.Context, db execer, couponID string, version int64, res lifecycle.Result, now time.Time) (sql.Result, error) {
	return db.ExecContext(ctx, `UPDATE coupons
		SET status = $3, used_value = $4, notified_used = $5, notified_expired = $6, updated_at = $7, version = version + 1
		WHERE id = $1 AND version = $2`,
		couponID, version, string(res.Status), res.UsedValue, res.NotifiedUsed, res.NotifiedExpired, now)
}
