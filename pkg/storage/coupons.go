package storage

import (
	"context"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/models"
)

// CouponReader defines the interface for reading coupon data.
type CouponReader interface {
	// GetCoupon retrieves a coupon by its ID with a strongly consistent read.
	GetCoupon(ctx context.Context, couponID string) (*models.Coupon, error)

	// ListCouponsByOwner retrieves every coupon currently owned by a user.
	ListCouponsByOwner(ctx context.Context, ownerID string) ([]models.Coupon, error)

	// ListCouponsForSale retrieves coupons with is_for_sale set.
	ListCouponsForSale(ctx context.Context) ([]models.Coupon, error)

	// ListCouponsByStatus retrieves coupons in the given lifecycle status.
	ListCouponsByStatus(ctx context.Context, status models.CouponStatus) ([]models.Coupon, error)
}

// CouponWriter defines the coupon mutations that happen outside of a transaction handshake.
type CouponWriter interface {
	// CreateCoupon stores a new coupon together with its opening ledger entries in one atomic write.
	// The caller has already set UsedValue to the sum of the entries and evaluated the status.
	CreateCoupon(ctx context.Context, c *models.Coupon, opening []models.LedgerEntry) (*models.Coupon, error)

	// UpdateListing persists IsForSale, IsAvailable and AskingPrice. It is conditioned on the
	// coupon's version and fails with ErrCouponPending while a transaction is open.
	UpdateListing(ctx context.Context, c *models.Coupon) error

	// ApplyStatus persists an evaluation result, conditioned on the coupon's version.
	ApplyStatus(ctx context.Context, c *models.Coupon, res lifecycle.Result) error
}

// CouponStore combines the reader and writer interfaces.
type CouponStore interface {
	CouponReader
	CouponWriter
}
