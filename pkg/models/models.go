package models

import (
	"time"
)

// CouponStatus defines the lifecycle states of a coupon.
type CouponStatus string

const (
	ACTIVE  CouponStatus = "ACTIVE"
	USED    CouponStatus = "USED"
	EXPIRED CouponStatus = "EXPIRED"
)

// Coupon represents the internal domain model for a redeemable balance.
// Description and Secret hold sealed values; see pkg/secrets.
type Coupon struct {
	Id                   string       `json:"id" dynamodbav:"id"`
	OwnerId              string       `json:"owner_id" dynamodbav:"owner_id"`
	Company              string       `json:"company" dynamodbav:"company"`
	Description          string       `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Secret               string       `json:"secret,omitempty" dynamodbav:"secret,omitempty"`
	Value                int64        `json:"value" dynamodbav:"value"`
	Cost                 int64        `json:"cost" dynamodbav:"cost"`
	AskingPrice          int64        `json:"asking_price" dynamodbav:"asking_price"`
	UsedValue            int64        `json:"used_value" dynamodbav:"used_value"`
	Status               CouponStatus `json:"status" dynamodbav:"status"`
	Expiration           string       `json:"expiration,omitempty" dynamodbav:"expiration,omitempty"`
	IsForSale            bool         `json:"is_for_sale" dynamodbav:"is_for_sale"`
	IsAvailable          bool         `json:"is_available" dynamodbav:"is_available"`
	IsOneTime            bool         `json:"is_one_time" dynamodbav:"is_one_time"`
	NotifiedUsed         bool         `json:"notified_used" dynamodbav:"notified_used"`
	NotifiedExpired      bool         `json:"notified_expired" dynamodbav:"notified_expired"`
	PendingTransactionId string       `json:"pending_transaction_id,omitempty" dynamodbav:"pending_transaction_id,omitempty"`
	Version              int64        `json:"version" dynamodbav:"version"`
	CreatedAt            time.Time    `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at" dynamodbav:"updated_at"`
}

// Remaining is the unconsumed balance of the coupon.
func (c *Coupon) Remaining() int64 {
	return c.Value - c.UsedValue
}

// LedgerSource identifies where a ledger entry came from.
type LedgerSource string

const (
	SourceManual         LedgerSource = "manual"
	SourceExternalReport LedgerSource = "external-report"
)

// LedgerEntry is an immutable usage (positive amount) or recharge (negative amount) event.
type LedgerEntry struct {
	Id         string       `json:"id" dynamodbav:"id"`
	CouponId   string       `json:"coupon_id" dynamodbav:"coupon_id"`
	Amount     int64        `json:"amount" dynamodbav:"amount"`
	Timestamp  time.Time    `json:"timestamp" dynamodbav:"timestamp"`
	Source     LedgerSource `json:"source" dynamodbav:"source"`
	Reference  string       `json:"reference,omitempty" dynamodbav:"reference,omitempty"`
	Location   string       `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Detail     string       `json:"detail,omitempty" dynamodbav:"detail,omitempty"`
	RecordedAt time.Time    `json:"recorded_at" dynamodbav:"recorded_at"`
}

// TransactionStatus defines the possible states of a handshake.
type TransactionStatus string

const (
	REQUESTED               TransactionStatus = "REQUESTED"
	SELLER_APPROVED         TransactionStatus = "SELLER_APPROVED"
	AWAITING_BUYER_CONFIRM  TransactionStatus = "AWAITING_BUYER_CONFIRM"
	AWAITING_SELLER_CONFIRM TransactionStatus = "AWAITING_SELLER_CONFIRM"
	COMPLETED               TransactionStatus = "COMPLETED"
	DECLINED                TransactionStatus = "DECLINED"
	CANCELLED               TransactionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible from the status.
func (s TransactionStatus) Terminal() bool {
	return s == COMPLETED || s == DECLINED || s == CANCELLED
}

// Cancellation reasons.
const (
	CancelReasonBuyer          = "buyer"
	CancelReasonTimeout        = "timeout"
	CancelReasonBalanceChanged = "balance_changed"
)

// Transaction represents one buyer's attempt to acquire one coupon from its seller.
// UsedValueAtRequest is the coupon's used_value when the buyer requested it; the sale only
// completes while the coupon still has that balance.
type Transaction struct {
	Id                 string            `json:"id" dynamodbav:"id"`
	CouponId           string            `json:"coupon_id" dynamodbav:"coupon_id"`
	BuyerId            string            `json:"buyer_id" dynamodbav:"buyer_id"`
	SellerId           string            `json:"seller_id" dynamodbav:"seller_id"`
	Status             TransactionStatus `json:"status" dynamodbav:"status"`
	AskingPrice        int64             `json:"asking_price" dynamodbav:"asking_price"`
	UsedValueAtRequest int64             `json:"used_value_at_request" dynamodbav:"used_value_at_request"`
	SellerApproved     bool              `json:"seller_approved" dynamodbav:"seller_approved"`
	SellerApprovedAt   *time.Time        `json:"seller_approved_at,omitempty" dynamodbav:"seller_approved_at,omitempty"`
	SellerConfirmed    bool              `json:"seller_confirmed" dynamodbav:"seller_confirmed"`
	SellerConfirmedAt  *time.Time        `json:"seller_confirmed_at,omitempty" dynamodbav:"seller_confirmed_at,omitempty"`
	BuyerConfirmed     bool              `json:"buyer_confirmed" dynamodbav:"buyer_confirmed"`
	BuyerConfirmedAt   *time.Time        `json:"buyer_confirmed_at,omitempty" dynamodbav:"buyer_confirmed_at,omitempty"`
	CodeProvisioned    bool              `json:"code_provisioned" dynamodbav:"code_provisioned"`
	CodeProvisionedAt  *time.Time        `json:"code_provisioned_at,omitempty" dynamodbav:"code_provisioned_at,omitempty"`
	ContactInfo        string            `json:"contact_info,omitempty" dynamodbav:"contact_info,omitempty"`
	CancelReason       string            `json:"cancel_reason,omitempty" dynamodbav:"cancel_reason,omitempty"`
	Version            int64             `json:"version" dynamodbav:"version"`
	CreatedAt          time.Time         `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" dynamodbav:"updated_at"`
}

// Notification is an outbound message record tied to a user.
type Notification struct {
	Id        string    `json:"id" dynamodbav:"id"`
	UserId    string    `json:"user_id" dynamodbav:"user_id"`
	Message   string    `json:"message" dynamodbav:"message"`
	Link      string    `json:"link,omitempty" dynamodbav:"link,omitempty"`
	Read      bool      `json:"read" dynamodbav:"read"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// UsageReport is a batch of usage rows for one coupon, as supplied by the usage-report collaborator.
type UsageReport struct {
	CouponId string     `json:"coupon_id"`
	Rows     []UsageRow `json:"rows"`
}

// UsageRow is one line of an external usage report.
type UsageRow struct {
	Reference      string    `json:"reference"`
	Timestamp      time.Time `json:"timestamp"`
	Location       string    `json:"location"`
	RechargeAmount int64     `json:"recharge_amount"`
	UsageAmount    int64     `json:"usage_amount"`
}
