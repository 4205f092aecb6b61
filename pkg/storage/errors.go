package storage

import "github.com/chris/coupon-exchange/pkg/errs"

// ErrNotFound is returned when a coupon, transaction or notification does not exist.
var ErrNotFound = errs.New(errs.NotFound, "record not found")

// ErrCouponUnavailable is returned when a coupon is not listed, already has a pending
// transaction, or changed owner before the transaction could be opened.
var ErrCouponUnavailable = errs.New(errs.Conflict, "coupon is not available for sale")

// ErrCouponPending is returned when a listing change or a manual ledger write is attempted
// while a transaction is open.
var ErrCouponPending = errs.New(errs.Conflict, "coupon has a pending transaction")

// ErrStaleTransaction is returned when a transaction is no longer in the expected predecessor state.
var ErrStaleTransaction = errs.New(errs.Conflict, "transaction state changed, re-read and retry")

// ErrVersionConflict is returned when an optimistic version check on a coupon fails.
var ErrVersionConflict = errs.New(errs.Conflict, "record was modified concurrently")

// ErrDuplicateLedgerEntry is returned when a ledger entry with the same dedup key was written concurrently.
var ErrDuplicateLedgerEntry = errs.New(errs.Conflict, "ledger entry already recorded")

// ErrNotOwner is returned when a manual ledger write finds the coupon owned by someone else.
var ErrNotOwner = errs.New(errs.Forbidden, "coupon is not owned by the caller")

// ErrUsageExceedsValue is returned when manual usage would consume more than the coupon's value.
var ErrUsageExceedsValue = errs.New(errs.Validation, "usage exceeds the coupon's remaining value")

// ErrCouponBalanceChanged is returned when a sale would transfer a coupon whose used_value
// changed after the buyer requested it.
var ErrCouponBalanceChanged = errs.New(errs.Conflict, "coupon balance changed during the transaction")
