// Package api holds the HTTP request and response bodies and the server interface the
// handlers implement.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// CouponStatus defines model for CouponStatus.
type CouponStatus string

// Defines values for CouponStatus.
const (
	CouponStatusACTIVE  CouponStatus = "ACTIVE"
	CouponStatusUSED    CouponStatus = "USED"
	CouponStatusEXPIRED CouponStatus = "EXPIRED"
)

// TransactionStatus defines model for TransactionStatus.
type TransactionStatus string

// Coupon defines model for Coupon.
type Coupon struct {
	Id             openapi_types.UUID `json:"id"`
	OwnerId        string             `json:"owner_id"`
	Company        string             `json:"company"`
	Description    *string            `json:"description,omitempty"`
	Value          int64              `json:"value"`
	Cost           *int64             `json:"cost,omitempty"`
	AskingPrice    int64              `json:"asking_price"`
	UsedValue      int64              `json:"used_value"`
	RemainingValue int64              `json:"remaining_value"`
	Status         CouponStatus       `json:"status"`
	Expiration     *string            `json:"expiration,omitempty"`
	IsForSale      bool               `json:"is_for_sale"`
	IsAvailable    bool               `json:"is_available"`
	IsOneTime      bool               `json:"is_one_time"`
	HasSecret      bool               `json:"has_secret"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// CouponSecret defines model for CouponSecret.
type CouponSecret struct {
	Code       string  `json:"code"`
	Cvv        *string `json:"cvv,omitempty"`
	CardExpiry *string `json:"card_expiry,omitempty"`
}

// NewCoupon defines model for NewCoupon.
type NewCoupon struct {
	Company     string        `json:"company"`
	Description *string       `json:"description,omitempty"`
	Value       int64         `json:"value"`
	Cost        int64         `json:"cost"`
	UsedValue   *int64        `json:"used_value,omitempty"`
	Expiration  *string       `json:"expiration,omitempty"`
	IsOneTime   *bool         `json:"is_one_time,omitempty"`
	Secret      *CouponSecret `json:"secret,omitempty"`
	ForSale     *bool         `json:"for_sale,omitempty"`
	AskingPrice *int64        `json:"asking_price,omitempty"`
}

// ExtractedCoupon defines model for ExtractedCoupon. Amounts are major units.
type ExtractedCoupon struct {
	Company     string              `json:"company"`
	Description *string             `json:"description,omitempty"`
	Value       float64             `json:"value"`
	Cost        float64             `json:"cost"`
	Expiration  *openapi_types.Date `json:"expiration,omitempty"`
	Code        *string             `json:"code,omitempty"`
	Cvv         *string             `json:"cvv,omitempty"`
	CardExpiry  *string             `json:"card_expiry,omitempty"`
	IsOneTime   *bool               `json:"is_one_time,omitempty"`
}

// Listing defines model for Listing.
type Listing struct {
	ForSale     bool   `json:"for_sale"`
	AskingPrice *int64 `json:"asking_price,omitempty"`
}

// LedgerEntry defines model for LedgerEntry.
type LedgerEntry struct {
	Id         string    `json:"id"`
	CouponId   string    `json:"coupon_id"`
	Amount     int64     `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Reference  *string   `json:"reference,omitempty"`
	Location   *string   `json:"location,omitempty"`
	Detail     *string   `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// UsageRequest defines model for UsageRequest.
type UsageRequest struct {
	Amount    int64      `json:"amount"`
	Location  *string    `json:"location,omitempty"`
	Detail    *string    `json:"detail,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RechargeRequest defines model for RechargeRequest.
type RechargeRequest struct {
	Amount int64   `json:"amount"`
	Detail *string `json:"detail,omitempty"`
}

// UsageReportRow defines model for UsageReportRow.
type UsageReportRow struct {
	Reference      string    `json:"reference"`
	Timestamp      time.Time `json:"timestamp"`
	Location       string    `json:"location"`
	RechargeAmount int64     `json:"recharge_amount"`
	UsageAmount    int64     `json:"usage_amount"`
}

// UsageReport defines model for UsageReport.
type UsageReport struct {
	Rows []UsageReportRow `json:"rows"`
}

// AppendResult defines model for AppendResult.
type AppendResult struct {
	Coupon     *Coupon `json:"coupon,omitempty"`
	Appended   int     `json:"appended"`
	Duplicates int     `json:"duplicates"`
	Queued     bool    `json:"queued,omitempty"`
}

// Transaction defines model for Transaction.
type Transaction struct {
	Id              openapi_types.UUID `json:"id"`
	CouponId        openapi_types.UUID `json:"coupon_id"`
	BuyerId         string             `json:"buyer_id"`
	SellerId        string             `json:"seller_id"`
	Status          TransactionStatus  `json:"status"`
	AskingPrice     int64              `json:"asking_price"`
	SellerApproved  bool               `json:"seller_approved"`
	SellerConfirmed bool               `json:"seller_confirmed"`
	BuyerConfirmed  bool               `json:"buyer_confirmed"`
	CodeProvisioned bool               `json:"code_provisioned"`
	ContactInfo     *string            `json:"contact_info,omitempty"`
	CancelReason    *string            `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ApproveRequest defines model for ApproveRequest.
type ApproveRequest struct {
	ContactInfo *string       `json:"contact_info,omitempty"`
	Secret      *CouponSecret `json:"secret,omitempty"`
}

// ProvisionRequest defines model for ProvisionRequest.
type ProvisionRequest struct {
	Secret *CouponSecret `json:"secret,omitempty"`
}

// Notification defines model for Notification.
type Notification struct {
	Id        openapi_types.UUID `json:"id"`
	Message   string             `json:"message"`
	Link      *string            `json:"link,omitempty"`
	Read      bool               `json:"read"`
	CreatedAt time.Time          `json:"created_at"`
}

// ListNotificationsParams defines parameters for ListNotifications.
type ListNotificationsParams struct {
	Limit *int32 `form:"limit,omitempty" json:"limit,omitempty"`
}

// Error defines model for Error.
type Error struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
