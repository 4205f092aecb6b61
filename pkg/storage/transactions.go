package storage

import (
	"context"
	"time"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
)

// TransactionReader defines the interface for reading transaction data.
type TransactionReader interface {
	// GetTransaction retrieves a transaction by its ID with a strongly consistent read.
	GetTransaction(ctx context.Context, txID string) (*models.Transaction, error)

	// ListTransactionsByUser retrieves every transaction where the user is buyer or seller.
	ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error)

	// ListStalledTransactions retrieves non-terminal transactions not updated since cutoff.
	ListStalledTransactions(ctx context.Context, cutoff time.Time) ([]models.Transaction, error)
}

// TransactionManager defines the handshake writes. Every method that takes a from status
// only succeeds if the stored transaction still has that status and tx.Version; on success
// the stored version is incremented and tx.Version updated to match.
type TransactionManager interface {
	// CreateTransaction stores a REQUESTED transaction and, in the same atomic write, marks the
	// coupon unavailable with tx as its pending transaction. It fails with ErrCouponUnavailable
	// unless the coupon is ACTIVE, for sale, available and still owned by tx.SellerId.
	CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error)

	// UpdateTransaction persists a non-terminal transition or flag change.
	UpdateTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error

	// ProvisionCode persists tx (with CodeProvisioned set) and, when sealedSecret is not empty,
	// replaces the coupon's secret in the same atomic write.
	ProvisionCode(ctx context.Context, tx *models.Transaction, from models.TransactionStatus, sealedSecret string) error

	// ReleaseTransaction persists a DECLINED or CANCELLED transaction and makes the coupon
	// available again without changing its owner.
	ReleaseTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionStatus) error

	// CompleteTransaction persists a COMPLETED transaction and transfers the coupon to the buyer:
	// owner and cost change, the sale flags are cleared and the coupon is re-evaluated with eval.
	// It fails with ErrVersionConflict if the coupon changed since it was read.
	CompleteTransaction(ctx context.Context, tx *models.Transaction, from models.TransactionStatus, eval lifecycle.EvaluateFunc) (*models.Coupon, lifecycle.Result, error)
}

// TransactionStore combines the reader and manager interfaces.
type TransactionStore interface {
	TransactionReader
	TransactionManager
}
