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
	"github.com/lib/pq"
)

const transactionColumns = `id, coupon_id, buyer_id, seller_id, status, asking_price,
	seller_approved, seller_approved_at, seller_confirmed, seller_confirmed_at,
	buyer_confirmed, buyer_confirmed_at, code_provisioned, code_provisioned_at,
	contact_info, cancel_reason, version, created_at, updated_at, used_value_at_request`

var openStatuses = []string{
	string(models.REQUESTED),
	string(models.SELLER_APPROVED),
	string(models.AWAITING_BUYER_CONFIRM),
	string(models.AWAITING_SELLER_CONFIRM),
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var tx models.Transaction
	err := row.Scan(&tx.Id, &tx.CouponId, &tx.BuyerId, &tx.SellerId, &tx.Status, &tx.AskingPrice,
		&tx.SellerApproved, &tx.SellerApprovedAt, &tx.SellerConfirmed, &tx.SellerConfirmedAt,
		&tx.BuyerConfirmed, &tx.BuyerConfirmedAt, &tx.CodeProvisioned, &tx.CodeProvisionedAt,
		&tx.ContactInfo, &tx.CancelReason, &tx.Version, &tx.CreatedAt, &tx.UpdatedAt, &tx.UsedValueAtRequest)
	if err != nil {
		return nil, err
	}
	for _, t := range []*time.Time{tx.SellerApprovedAt, tx.SellerConfirmedAt, tx.BuyerConfirmedAt, tx.CodeProvisionedAt, &tx.CreatedAt, &tx.UpdatedAt} {
		utc(t)
	}
	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %s: %w", txID, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *Store) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	return s.listTransactions(ctx, `buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`, userID)
}

func (s *Store) ListStalledTransactions(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	return s.listTransactions(ctx, `status = ANY($1) AND updated_at < $2 ORDER BY updated_at`, pq.Array(openStatuses), cutoff)
}

func (s *Store) listTransactions(ctx context.Context, where string, args ...any) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCoupon(ctx, tx, t.CouponId)
		if err != nil {
			return err
		}
		if c.Status != models.ACTIVE || !c.IsForSale || !c.IsAvailable || c.PendingTransactionId != "" || c.OwnerId != t.SellerId {
			return storage.ErrCouponUnavailable
		}
		t.UsedValueAtRequest = c.UsedValue

		if _, err := tx.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
			t.Id, t.CouponId, t.BuyerId, t.SellerId, string(t.Status), t.AskingPrice,
			t.SellerApproved, t.SellerApprovedAt, t.SellerConfirmed, t.SellerConfirmedAt,
			t.BuyerConfirmed, t.BuyerConfirmedAt, t.CodeProvisioned, t.CodeProvisionedAt,
			t.ContactInfo, t.CancelReason, t.Version, t.CreatedAt, t.UpdatedAt, t.UsedValueAtRequest); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE coupons
			SET is_available = FALSE, pending_transaction_id = $2, updated_at = $3, version = version + 1
			WHERE id = $1`, t.CouponId, t.Id, t.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// writeTransaction overwrites the mutable columns of t if the row still has the from status
// and t's version. The caller bumps t.Version once the surrounding write has committed.
func writeTransaction(ctx context.Context, db execer, t *models.Transaction, from models.TransactionStatus) error {
	res, err := db.ExecContext(ctx, `UPDATE transactions SET
			status = $4, seller_approved = $5, seller_approved_at = $6, seller_confirmed = $7,
			seller_confirmed_at = $8, buyer_confirmed = $9, buyer_confirmed_at = $10,
			code_provisioned = $11, code_provisioned_at = $12, contact_info = $13,
			cancel_reason = $14, updated_at = $15, version = version + 1
		WHERE id = $1 AND status = $2 AND version = $3`,
		t.Id, string(from), t.Version, string(t.Status), t.SellerApproved, t.SellerApprovedAt,
		t.SellerConfirmed, t.SellerConfirmedAt, t.BuyerConfirmed, t.BuyerConfirmedAt,
		t.CodeProvisioned, t.CodeProvisionedAt, t.ContactInfo, t.CancelReason, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return affected(res, storage.ErrStaleTransaction)
}

func (s *Store) UpdateTransaction(ctx context.Context, t *models.Transaction, from models.TransactionStatus) error {
	if err := writeTransaction(ctx, s.db, t, from); err != nil {
		return translate(err)
	}
	t.Version++
	return nil
}

func (s *Store) ProvisionCode(ctx context.Context, t *models.Transaction, from models.TransactionStatus, sealedSecret string) error {
	if sealedSecret == "" {
		return s.UpdateTransaction(ctx, t, from)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeTransaction(ctx, tx, t, from); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE coupons SET secret = $2, updated_at = $3, version = version + 1
			WHERE id = $1 AND pending_transaction_id = $4`, t.CouponId, sealedSecret, t.UpdatedAt, t.Id)
		if err != nil {
			return fmt.Errorf("failed to store coupon secret: %w", err)
		}
		return affected(res, storage.ErrStaleTransaction)
	})
	if err != nil {
		return err
	}
	t.Version++
	return nil
}

func (s *Store) ReleaseTransaction(ctx context.Context, t *models.Transaction, from models.TransactionStatus) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := writeTransaction(ctx, tx, t, from); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE coupons
			SET is_available = TRUE, pending_transaction_id = NULL, updated_at = $2, version = version + 1
			WHERE id = $1 AND pending_transaction_id = $3`, t.CouponId, t.UpdatedAt, t.Id)
		if err != nil {
			return fmt.Errorf("failed to release coupon: %w", err)
		}
		return affected(res, storage.ErrStaleTransaction)
	})
	if err != nil {
		return err
	}
	t.Version++
	return nil
}

func (s *Store) CompleteTransaction(ctx context.Context, t *models.Transaction, from models.TransactionStatus, eval lifecycle.EvaluateFunc) (*models.Coupon, lifecycle.Result, error) {
	var (
		c   *models.Coupon
		res lifecycle.Result
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = lockCoupon(ctx, tx, t.CouponId)
		if err != nil {
			return err
		}
		if c.PendingTransactionId != t.Id || c.OwnerId != t.SellerId {
			return storage.ErrVersionConflict
		}
		if c.UsedValue != t.UsedValueAtRequest {
			return storage.ErrCouponBalanceChanged
		}
		if err := writeTransaction(ctx, tx, t, from); err != nil {
			return err
		}

		c.OwnerId = t.BuyerId
		c.Cost = t.AskingPrice
		c.AskingPrice = 0
		c.IsForSale = false
		c.IsAvailable = true
		c.PendingTransactionId = ""
		res = eval(*c, c.UsedValue)
		res.Apply(c)
		c.Version++
		c.UpdatedAt = t.UpdatedAt

		_, err = tx.ExecContext(ctx, `UPDATE coupons SET
				owner_id = $2, cost = $3, asking_price = 0, is_for_sale = FALSE, is_available = TRUE,
				pending_transaction_id = NULL, status = $4, notified_used = $5, notified_expired = $6,
				updated_at = $7, version = $8
			WHERE id = $1`,
			c.Id, c.OwnerId, c.Cost, string(c.Status), c.NotifiedUsed, c.NotifiedExpired, c.UpdatedAt, c.Version)
		return err
	})
	if err != nil {
		return nil, lifecycle.Result{}, err
	}
	t.Version++
	return c, res, nil
}
