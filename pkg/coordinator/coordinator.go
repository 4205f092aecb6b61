// Package coordinator drives the buyer/seller handshake for one coupon:
//
//	REQUESTED -> SELLER_APPROVED | DECLINED | CANCELLED
//	SELLER_APPROVED -> AWAITING_BUYER_CONFIRM (automatic)
//	AWAITING_BUYER_CONFIRM -> AWAITING_SELLER_CONFIRM (buyer: payment sent)
//	AWAITING_SELLER_CONFIRM -> COMPLETED (seller: payment received, code provisioned)
//
// Every transition is a single conditioned write on the expected predecessor status, so of two
// racing actions exactly one succeeds and the other gets storage.ErrStaleTransaction.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/metrics"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/notify"
	"github.com/chris/coupon-exchange/pkg/secrets"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const completeAttempts = 4

var tracer = otel.Tracer("github.com/chris/coupon-exchange/pkg/coordinator")

type role int

const (
	buyer role = iota
	seller
)

// Store is the storage the coordinator needs.
type Store interface {
	storage.CouponReader
	storage.TransactionStore
}

// ApproveInput is the seller's approval. Secret, when set, provisions the code in the same step.
type ApproveInput struct {
	ContactInfo string                `json:"contact_info,omitempty"`
	Secret      *secrets.CouponSecret `json:"secret,omitempty"`
}

// ProvisionInput replaces the coupon's code. Without a secret the stored one is provisioned.
type ProvisionInput struct {
	Secret *secrets.CouponSecret `json:"secret,omitempty"`
}

// Coordinator runs the handshake state machine.
type Coordinator struct {
	store    Store
	box      *secrets.Box
	notifier notify.Notifier
	now      func() time.Time
}

// New creates a new Coordinator.
func New(store Store, box *secrets.Box, notifier notify.Notifier) *Coordinator {
	return &Coordinator{store: store, box: box, notifier: notifier, now: time.Now}
}

// WithClock replaces the coordinator clock. Used in tests.
func (co *Coordinator) WithClock(now func() time.Time) *Coordinator {
	co.now = now
	return co
}

// Request opens a handshake for couponID. Creating the transaction and taking the coupon off
// the market are one atomic write; of concurrent requests exactly one succeeds and the others
// get storage.ErrCouponUnavailable.
func (co *Coordinator) Request(ctx context.Context, buyerID, couponID string) (tx *models.Transaction, err error) {
	const op = "coordinator.Request"
	ctx, end := startSpan(ctx, op, attribute.String("coupon_id", couponID))
	defer func() { end(err) }()

	c, err := co.store.GetCoupon(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	if c.OwnerId == buyerID {
		return nil, errs.Validationf(op, "cannot request your own coupon")
	}
	if !c.IsForSale || !c.IsAvailable || c.PendingTransactionId != "" ||
		lifecycle.Evaluate(*c, c.UsedValue, co.now()).Status != models.ACTIVE {
		return nil, storage.ErrCouponUnavailable
	}

	now := co.now().UTC()
	tx = &models.Transaction{
		Id:                 uuid.New().String(),
		CouponId:           c.Id,
		BuyerId:            buyerID,
		SellerId:           c.OwnerId,
		Status:             models.REQUESTED,
		AskingPrice:        c.AskingPrice,
		UsedValueAtRequest: c.UsedValue,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	created, err := co.store.CreateTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, storage.ErrCouponUnavailable) {
			metrics.TransactionConflicts.WithLabelValues("request").Inc()
		}
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	metrics.TransactionTransitions.WithLabelValues("", string(models.REQUESTED)).Inc()
	slog.Info("transaction requested", "transaction_id", created.Id, "coupon_id", c.Id, "buyer_id", buyerID, "seller_id", c.OwnerId)
	co.notify(ctx, created.SellerId, notify.EventRequested, c.Company, created.Id)
	return created, nil
}

// Approve moves a REQUESTED transaction through SELLER_APPROVED to AWAITING_BUYER_CONFIRM.
func (co *Coordinator) Approve(ctx context.Context, sellerID, txID string, in ApproveInput) (tx *models.Transaction, err error) {
	const op = "coordinator.Approve"
	ctx, end := startSpan(ctx, op, attribute.String("transaction_id", txID))
	defer func() { end(err) }()

	tx, err = co.load(ctx, op, txID, sellerID, seller, models.REQUESTED)
	if err != nil {
		return nil, err
	}

	sealed := ""
	if in.Secret != nil && !in.Secret.Empty() {
		if sealed, err = co.box.SealSecret(*in.Secret); err != nil {
			return nil, fmt.Errorf("failed to seal secret: %w", err)
		}
	}

	now := co.now().UTC()
	tx.Status = models.SELLER_APPROVED
	tx.SellerApproved = true
	tx.SellerApprovedAt = &now
	tx.ContactInfo = strings.TrimSpace(in.ContactInfo)
	tx.UpdatedAt = now
	if sealed != "" {
		tx.CodeProvisioned = true
		tx.CodeProvisionedAt = &now
		err = co.store.ProvisionCode(ctx, tx, models.REQUESTED, sealed)
	} else {
		err = co.store.UpdateTransaction(ctx, tx, models.REQUESTED)
	}
	if err != nil {
		return nil, co.conflict("approve", fmt.Errorf("failed to approve transaction: %w", err))
	}
	co.transitioned(tx, models.REQUESTED)

	company := co.company(ctx, tx.CouponId)
	co.notify(ctx, tx.BuyerId, notify.EventApproved, company, tx.Id)
	if tx.CodeProvisioned {
		co.notify(ctx, tx.BuyerId, notify.EventCodeProvisioned, company, tx.Id)
	}
	return co.advance(ctx, tx)
}

// Decline ends a REQUESTED transaction and puts the coupon back on the market.
func (co *Coordinator) Decline(ctx context.Context, sellerID, txID string) (tx *models.Transaction, err error) {
	const op = "coordinator.Decline"
	ctx, end := startSpan(ctx, op, attribute.String("transaction_id", txID))
	defer func() { end(err) }()

	tx, err = co.load(ctx, op, txID, sellerID, seller, models.REQUESTED)
	if err != nil {
		return nil, err
	}
	if err := co.release(ctx, tx, models.DECLINED, ""); err != nil {
		return nil, co.conflict("decline", fmt.Errorf("failed to decline transaction: %w", err))
	}
	co.notify(ctx, tx.BuyerId, notify.EventDeclined, co.company(ctx, tx.CouponId), tx.Id)
	return tx, nil
}

// Cancel withdraws the buyer's request while it is still REQUESTED.
func (co *Coordinator) Cancel(ctx context.Context, buyerID, txID string) (tx *models.Transaction, err error) {
	const op = "coordinator.Cancel"
	ctx, end := startSpan(ctx, op, attribute.String("transaction_id", txID))
	defer func() { end(err) }()

	tx, err = co.load(ctx, op, txID, buyerID, buyer, models.REQUESTED)
	if err != nil {
		return nil, err
	}
	if err := co.release(ctx, tx, models.CANCELLED, models.CancelReasonBuyer); err != nil {
		return nil, co.conflict("cancel", fmt.Errorf("failed to cancel transaction: %w", err))
	}
	co.notify(ctx, tx.SellerId, notify.EventCancelled, co.company(ctx, tx.CouponId), tx.Id)
	return tx, nil
}

// ProvisionCode makes the coupon's code available to the buyer, optionally replacing it first.
func (co *Coordinator) ProvisionCode(ctx context.Context, sellerID, txID string, in ProvisionInput) (tx *models.Transaction, err error) {
	const op = "coordinator.ProvisionCode"
	ctx, end := startSpan(ctx, op, attribute.String("transaction_id", txID))
	defer func() { end(err) }()

	tx, err = co.load(ctx, op, txID, sellerID, seller,
		models.AWAITING_BUYER_CONFIRM, models.AWAITING_SELLER_CONFIRM)
	if err != nil {
		return nil, err
	}

	sealed := ""
	if in.Secret != nil && !in.Secret.Empty() {
		if sealed, err = co.box.SealSecret(*in.Secret); err != nil {
			return nil, fmt.Errorf("failed to seal secret: %w", err)
		}
	} else {
		if tx.CodeProvisioned {
			return tx, nil
		}
		c, err := co.store.GetCoupon(ctx, tx.CouponId)
		if err != nil {
			return nil, fmt.Errorf("failed to get coupon: %w", err)
		}
		if c.Secret == "" {
			return nil, errs.Validationf(op, "coupon has no code on file, provide one")
		}
	}

	now := co.now().UTC()
	tx.CodeProvisioned = true
	tx.CodeProvisionedAt = &now
	tx.UpdatedAt = now
	if err := co.store.ProvisionCode(ctx, tx, tx.Status, sealed); err != nil {
		return nil, co.conflict("provision", fmt.Errorf("failed to provision code: %w", err))
	}
	slog.Info("coupon code provisioned", "transaction_id", tx.Id, "replaced", sealed != "")
	co.notify(ctx, tx.BuyerId, notify.EventCodeProvisioned, co.company(ctx, tx.CouponId), tx.Id)
	return tx, nil
}

// ConfirmPaymentSent records the buyer's claim that payment was sent. If the coupon's balance
// changed since the request, the handshake is cancelled instead so no payment goes out for it.
func (co *Coordinator) ConfirmPaymentSent(ctx context.Context, buyerID, txID string) (tx *models.Transaction, err error) {
	const op = "coordinator.ConfirmPaymentSent"
	ctx, end := startSpan(ctx, op, attribute.String("transaction_id", txID))
	defer func() { end(err) }()

	tx, err = co.load(ctx, op, txID, buyerID, buyer, models.AWAITING_BUYER_CONFIRM)
	if err != nil {
		return nil, err
	}

	c, err := co.store.GetCoupon(ctx, tx.CouponId)
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	if c.UsedValue != tx.UsedValueAtRequest {
		if err := co.release(ctx, tx, models.CANCELLED, models.CancelReasonBalanceChanged); err != nil {
			return nil, co.conflict("confirm_sent", fmt.Errorf("failed to cancel transaction: %w", err))
		}
		slog.Warn("coupon balance changed during handshake, cancelled", "transaction_id", tx.Id, "coupon_id", c.Id,
			"used_value", c.UsedValue, "used_value_at_request", tx.UsedValueAtRequest)
		co.notify(ctx, tx.BuyerId, notify.EventBalanceChanged, c.Company, tx.Id)
		co.notify(ctx, tx.SellerId, notify.EventBalanceChanged, c.Company, tx.Id)
		return nil, co.conflict("confirm_sent", fmt.Errorf("%s: transaction %s cancelled: %w", op, txID, storage.ErrCouponBalanceChanged))
	}

	now := co.now().UTC()
	tx.Status = models.AWAITING_SELLER_CONFIRM
	tx.BuyerConfirmed = true
	tx.BuyerConfirmedAt = &now
	tx.UpdatedAt = now
	if err := co.store.UpdateTransaction(ctx, tx, models.AWAITING_BUYER_CONFIRM); err != nil {
		return nil, co.conflict("confirm_sent", fmt.Errorf("failed to confirm payment sent: %w", err))
	}
	co.transitioned(tx, models.AWAITING_BUYER_CONFIRM)
	co.notify(ctx, tx.SellerId, notify.EventPaymentSent, co.company(ctx, tx.CouponId), tx.Id)
	return tx, nil
}

// ConfirmPaymentReceived completes the sale and transfers the coupon to the buyer. Calling it
// again on a COMPLETED transaction returns the stored state without a second transfer.
func (co *Coordinator) ConfirmPaymentReceived(ctx context.Context, sellerID, txID string) (tx *models.Transaction, err error) {
	const op = "coordinator.ConfirmPaymentReceived"
	ctx, end := startSpan(ctx, op, attribute.String("transaction_id", txID))
	defer func() { end(err) }()

	var lastErr error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		tx, err = co.load(ctx, op, txID, sellerID, seller, models.AWAITING_SELLER_CONFIRM, models.COMPLETED)
		if err != nil {
			return nil, err
		}
		if tx.Status == models.COMPLETED {
			return tx, nil
		}
		if !tx.CodeProvisioned {
			return nil, errs.Validationf(op, "provision the coupon code before confirming payment")
		}
		if !tx.BuyerConfirmed {
			return nil, errs.Validationf(op, "transaction %s has no buyer confirmation", txID)
		}

		now := co.now().UTC()
		tx.Status = models.COMPLETED
		tx.SellerConfirmed = true
		tx.SellerConfirmedAt = &now
		tx.UpdatedAt = now

		c, res, err := co.store.CompleteTransaction(ctx, tx, models.AWAITING_SELLER_CONFIRM, lifecycle.At(co.now()))
		if errors.Is(err, storage.ErrCouponBalanceChanged) {
			// Payment was already sent, so the handshake stays open for the parties to settle.
			company := co.company(ctx, tx.CouponId)
			co.notify(ctx, tx.BuyerId, notify.EventBalanceDispute, company, tx.Id)
			co.notify(ctx, tx.SellerId, notify.EventBalanceDispute, company, tx.Id)
			return nil, co.conflict("confirm_received", fmt.Errorf("failed to complete transaction: %w", err))
		}
		if err == nil {
			co.transitioned(tx, models.AWAITING_SELLER_CONFIRM)
			slog.Info("coupon ownership transferred", "transaction_id", tx.Id, "coupon_id", c.Id, "owner_id", c.OwnerId, "status", c.Status)
			if res.Changed && len(res.Intents) > 0 {
				metrics.CouponStatusChanges.WithLabelValues(string(res.Status)).Inc()
			}
			co.notify(ctx, tx.BuyerId, notify.EventCompleted, c.Company, tx.Id)
			notify.DeliverIntents(ctx, co.notifier, res.Intents)
			return tx, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) && !errors.Is(err, storage.ErrStaleTransaction) {
			return nil, fmt.Errorf("failed to complete transaction: %w", err)
		}
		metrics.TransactionConflicts.WithLabelValues("confirm_received").Inc()
		lastErr = err
	}
	return nil, fmt.Errorf("failed to complete transaction after %d attempts: %w", completeAttempts, lastErr)
}

// RevealSecret opens the coupon code for the buyer once it has been provisioned.
func (co *Coordinator) RevealSecret(ctx context.Context, buyerID, txID string) (secrets.CouponSecret, error) {
	const op = "coordinator.RevealSecret"
	tx, err := co.load(ctx, op, txID, buyerID, buyer,
		models.AWAITING_BUYER_CONFIRM, models.AWAITING_SELLER_CONFIRM, models.COMPLETED)
	if err != nil {
		return secrets.CouponSecret{}, err
	}
	if !tx.CodeProvisioned {
		return secrets.CouponSecret{}, errs.Validationf(op, "the seller has not provisioned the code yet")
	}

	c, err := co.store.GetCoupon(ctx, tx.CouponId)
	if err != nil {
		return secrets.CouponSecret{}, fmt.Errorf("failed to get coupon: %w", err)
	}
	if tx.Status == models.COMPLETED && c.OwnerId != buyerID {
		return secrets.CouponSecret{}, errs.Forbiddenf(op, "coupon %s has changed hands since transaction %s", c.Id, txID)
	}
	secret, err := co.box.OpenSecret(c.Secret)
	if err != nil {
		return secrets.CouponSecret{}, fmt.Errorf("failed to open coupon secret: %w", err)
	}
	return secret, nil
}

// Get returns a transaction to its buyer or seller.
func (co *Coordinator) Get(ctx context.Context, userID, txID string) (*models.Transaction, error) {
	tx, err := co.read(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.BuyerId != userID && tx.SellerId != userID {
		return nil, errs.Forbiddenf("coordinator.Get", "transaction %s does not involve %s", txID, userID)
	}
	return tx, nil
}

// List returns every transaction where the user is buyer or seller, newest first.
func (co *Coordinator) List(ctx context.Context, userID string) ([]models.Transaction, error) {
	list, err := co.store.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	for i := range list {
		if list[i].Status != models.SELLER_APPROVED {
			continue
		}
		advanced, err := co.advance(ctx, &list[i])
		if err != nil {
			slog.Warn("failed to advance approved transaction", "transaction_id", list[i].Id, "error", err)
			continue
		}
		list[i] = *advanced
	}
	return list, nil
}

// ExpireStalled cancels every handshake that has not moved for longer than olderThan and
// returns how many were cancelled. Transactions that move concurrently are skipped, and so are
// handshakes awaiting the seller's confirmation: the buyer has paid and may hold the code.
func (co *Coordinator) ExpireStalled(ctx context.Context, olderThan time.Duration) (n int, err error) {
	ctx, end := startSpan(ctx, "coordinator.ExpireStalled")
	defer func() { end(err) }()

	cutoff := co.now().Add(-olderThan)
	stalled, err := co.store.ListStalledTransactions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stalled transactions: %w", err)
	}

	for i := range stalled {
		tx := &stalled[i]
		if !timeoutCancellable(tx.Status) {
			if tx.Status == models.AWAITING_SELLER_CONFIRM {
				slog.Warn("handshake awaiting seller confirmation is stalled", "transaction_id", tx.Id, "updated_at", tx.UpdatedAt)
			}
			continue
		}
		if err := co.release(ctx, tx, models.CANCELLED, models.CancelReasonTimeout); err != nil {
			if errors.Is(err, storage.ErrStaleTransaction) {
				slog.Info("stalled transaction moved, skipping", "transaction_id", tx.Id)
				continue
			}
			return n, fmt.Errorf("failed to cancel stalled transaction %s: %w", tx.Id, err)
		}
		n++
		company := co.company(ctx, tx.CouponId)
		co.notify(ctx, tx.BuyerId, notify.EventTimedOut, company, tx.Id)
		co.notify(ctx, tx.SellerId, notify.EventTimedOut, company, tx.Id)
	}
	if n > 0 {
		slog.Info("stalled transactions cancelled", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func timeoutCancellable(s models.TransactionStatus) bool {
	return s == models.REQUESTED || s == models.SELLER_APPROVED || s == models.AWAITING_BUYER_CONFIRM
}

// read returns the transaction, finishing an approval that was interrupted between its two writes.
func (co *Coordinator) read(ctx context.Context, txID string) (*models.Transaction, error) {
	tx, err := co.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return co.advance(ctx, tx)
}

// load reads the transaction and checks the actor's role and the expected predecessor status.
func (co *Coordinator) load(ctx context.Context, op, txID, actorID string, r role, allowed ...models.TransactionStatus) (*models.Transaction, error) {
	tx, err := co.read(ctx, txID)
	if err != nil {
		return nil, err
	}

	switch r {
	case buyer:
		if tx.BuyerId != actorID {
			return nil, errs.Forbiddenf(op, "only the buyer of transaction %s may do this", txID)
		}
	case seller:
		if tx.SellerId != actorID {
			return nil, errs.Forbiddenf(op, "only the seller of transaction %s may do this", txID)
		}
	}

	if !slices.Contains(allowed, tx.Status) {
		return nil, fmt.Errorf("%s: transaction %s is %s: %w", op, txID, tx.Status, storage.ErrStaleTransaction)
	}
	return tx, nil
}

// advance performs the automatic SELLER_APPROVED -> AWAITING_BUYER_CONFIRM step.
func (co *Coordinator) advance(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if tx.Status != models.SELLER_APPROVED {
		return tx, nil
	}

	next := *tx
	next.Status = models.AWAITING_BUYER_CONFIRM
	next.UpdatedAt = co.now().UTC()
	err := co.store.UpdateTransaction(ctx, &next, models.SELLER_APPROVED)
	if errors.Is(err, storage.ErrStaleTransaction) {
		// someone else advanced it
		fresh, err := co.store.GetTransaction(ctx, tx.Id)
		if err != nil {
			return nil, fmt.Errorf("failed to get transaction: %w", err)
		}
		return fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance transaction: %w", err)
	}
	co.transitioned(&next, models.SELLER_APPROVED)
	return &next, nil
}

func (co *Coordinator) release(ctx context.Context, tx *models.Transaction, to models.TransactionStatus, reason string) error {
	from := tx.Status
	tx.Status = to
	tx.CancelReason = reason
	tx.UpdatedAt = co.now().UTC()
	if err := co.store.ReleaseTransaction(ctx, tx, from); err != nil {
		return err
	}
	co.transitioned(tx, from)
	return nil
}

func (co *Coordinator) transitioned(tx *models.Transaction, from models.TransactionStatus) {
	metrics.TransactionTransitions.WithLabelValues(string(from), string(tx.Status)).Inc()
	slog.Info("transaction transitioned", "transaction_id", tx.Id, "from", from, "to", tx.Status)
}

func (co *Coordinator) conflict(operation string, err error) error {
	if errs.Is(err, errs.Conflict) {
		metrics.TransactionConflicts.WithLabelValues(operation).Inc()
	}
	return err
}

// company is best-effort; it only feeds notification text.
func (co *Coordinator) company(ctx context.Context, couponID string) string {
	c, err := co.store.GetCoupon(ctx, couponID)
	if err != nil {
		slog.Warn("failed to read coupon for notification", "coupon_id", couponID, "error", err)
		return "unknown"
	}
	return c.Company
}

func (co *Coordinator) notify(ctx context.Context, userID string, event notify.Event, company, txID string) {
	co.notifier.Notify(ctx, userID, notify.TransactionMessage(event, company), notify.TransactionLink(txID))
}

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
