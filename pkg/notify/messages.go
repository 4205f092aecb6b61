package notify

import (
	"context"
	"fmt"

	"github.com/chris/coupon-exchange/pkg/lifecycle"
)

// Event is a handshake event worth telling the counterparty about.
type Event string

const (
	EventRequested       Event = "requested"
	EventApproved        Event = "approved"
	EventDeclined        Event = "declined"
	EventCancelled       Event = "cancelled"
	EventCodeProvisioned Event = "code-provisioned"
	EventPaymentSent     Event = "payment-sent"
	EventCompleted       Event = "completed"
	EventTimedOut        Event = "timed-out"
	EventBalanceChanged  Event = "balance-changed"
	EventBalanceDispute  Event = "balance-dispute"
)

var transactionTemplates = map[Event]string{
	EventRequested:       "A buyer requested your %s coupon. Approve or decline the request.",
	EventApproved:        "The seller approved your request for the %s coupon. Send the payment and confirm it.",
	EventDeclined:        "The seller declined your request for the %s coupon.",
	EventCancelled:       "The buyer cancelled the request for your %s coupon. It is available again.",
	EventCodeProvisioned: "The code for the %s coupon is now available to you.",
	EventPaymentSent:     "The buyer reports sending payment for the %s coupon. Confirm once you receive it.",
	EventCompleted:       "The purchase of the %s coupon is complete. It is now yours.",
	EventTimedOut:        "The handshake for the %s coupon was cancelled after a period of inactivity.",
	EventBalanceChanged:  "The handshake for the %s coupon was cancelled because its balance changed. No payment should be sent.",
	EventBalanceDispute:  "The %s coupon's balance changed after payment was sent, so the sale cannot complete. Settle the difference with the other party.",
}

// TransactionMessage renders the text for a handshake event.
func TransactionMessage(event Event, company string) string {
	tmpl, ok := transactionTemplates[event]
	if !ok {
		return fmt.Sprintf("Your transaction for the %s coupon was updated.", company)
	}
	return fmt.Sprintf(tmpl, company)
}

// IntentMessage renders the text for a lifecycle intent.
func IntentMessage(intent lifecycle.Intent) string {
	switch intent.Kind {
	case lifecycle.IntentFullyUsed:
		return fmt.Sprintf("Your %s coupon has been fully used.", intent.Company)
	case lifecycle.IntentExpired:
		return fmt.Sprintf("Your %s coupon has expired.", intent.Company)
	default:
		return fmt.Sprintf("Your %s coupon was updated.", intent.Company)
	}
}

// TransactionLink is the deep link to a transaction.
func TransactionLink(txID string) string {
	return "/transactions/" + txID
}

// CouponLink is the deep link to a coupon.
func CouponLink(couponID string) string {
	return "/coupons/" + couponID
}

// DeliverIntents sends each lifecycle intent to its owner.
func DeliverIntents(ctx context.Context, n Notifier, intents []lifecycle.Intent) {
	for _, intent := range intents {
		n.Notify(ctx, intent.UserId, IntentMessage(intent), CouponLink(intent.CouponId))
	}
}
