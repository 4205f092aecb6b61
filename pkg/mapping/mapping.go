package mapping

import (
	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/coordinator"
	"github.com/chris/coupon-exchange/pkg/coupons"
	"github.com/chris/coupon-exchange/pkg/ledger"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/secrets"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/google/uuid"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ToApiCoupon converts a coupon view to an API Coupon model. Cost is only shown to the owner.
func ToApiCoupon(v *coupons.View, viewerID string) *api.Coupon {
	c := &api.Coupon{
		Id:             parseUUID(v.Id),
		OwnerId:        v.OwnerId,
		Company:        v.Company,
		Description:    optional(v.Description),
		Value:          v.Value,
		AskingPrice:    v.AskingPrice,
		UsedValue:      v.UsedValue,
		RemainingValue: v.RemainingValue,
		Status:         api.CouponStatus(v.Status),
		Expiration:     optional(v.Expiration),
		IsForSale:      v.IsForSale,
		IsAvailable:    v.IsAvailable,
		IsOneTime:      v.IsOneTime,
		HasSecret:      v.HasSecret,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	if v.OwnerId == viewerID {
		cost := v.Cost
		c.Cost = &cost
	}
	return c
}

// ToApiCoupons converts a list of coupon views.
func ToApiCoupons(views []coupons.View, viewerID string) []*api.Coupon {
	out := make([]*api.Coupon, len(views))
	for i := range views {
		out[i] = ToApiCoupon(&views[i], viewerID)
	}
	return out
}

// ToDomainNewCoupon converts an API NewCoupon model to the service input.
func ToDomainNewCoupon(in *api.NewCoupon) coupons.CreateCouponInput {
	out := coupons.CreateCouponInput{
		Company:     in.Company,
		Description: value(in.Description),
		Value:       in.Value,
		Cost:        in.Cost,
		UsedValue:   value(in.UsedValue),
		Expiration:  value(in.Expiration),
		IsOneTime:   value(in.IsOneTime),
		ForSale:     value(in.ForSale),
		AskingPrice: value(in.AskingPrice),
	}
	if in.Secret != nil {
		out.Secret = ToDomainSecret(in.Secret)
	}
	return out
}

// ToDomainExtractedCoupon converts the extraction record to the service input.
func ToDomainExtractedCoupon(in *api.ExtractedCoupon) coupons.ExtractedCoupon {
	out := coupons.ExtractedCoupon{
		Company:     in.Company,
		Description: value(in.Description),
		Value:       in.Value,
		Cost:        in.Cost,
		Code:        value(in.Code),
		CVV:         value(in.Cvv),
		CardExpiry:  value(in.CardExpiry),
		IsOneTime:   value(in.IsOneTime),
	}
	if in.Expiration != nil {
		out.Expiration = in.Expiration.String()
	}
	return out
}

// ToDomainListing converts an API Listing model to the service input.
func ToDomainListing(in *api.Listing) coupons.ListingInput {
	return coupons.ListingInput{ForSale: in.ForSale, AskingPrice: value(in.AskingPrice)}
}

// ToDomainSecret converts an API CouponSecret model.
func ToDomainSecret(in *api.CouponSecret) secrets.CouponSecret {
	return secrets.CouponSecret{Code: in.Code, CVV: value(in.Cvv), CardExpiry: value(in.CardExpiry)}
}

// ToApiSecret converts a coupon secret to the API model.
func ToApiSecret(s secrets.CouponSecret) *api.CouponSecret {
	return &api.CouponSecret{Code: s.Code, Cvv: optional(s.CVV), CardExpiry: optional(s.CardExpiry)}
}

// ToApiLedgerEntry converts a domain LedgerEntry model to an API LedgerEntry model.
func ToApiLedgerEntry(e *models.LedgerEntry) *api.LedgerEntry {
	return &api.LedgerEntry{
		Id:         e.Id,
		CouponId:   e.CouponId,
		Amount:     e.Amount,
		Timestamp:  e.Timestamp,
		Source:     string(e.Source),
		Reference:  optional(e.Reference),
		Location:   optional(e.Location),
		Detail:     optional(e.Detail),
		RecordedAt: e.RecordedAt,
	}
}

// ToDomainUsage converts an API UsageRequest model to the ledger input.
func ToDomainUsage(in *api.UsageRequest) ledger.UsageInput {
	return ledger.UsageInput{Amount: in.Amount, Location: value(in.Location), Detail: value(in.Detail), Timestamp: in.Timestamp}
}

// ToDomainRecharge converts an API RechargeRequest model to the ledger input.
func ToDomainRecharge(in *api.RechargeRequest) ledger.RechargeInput {
	return ledger.RechargeInput{Amount: in.Amount, Detail: value(in.Detail)}
}

// ToDomainUsageReport converts an API UsageReport model for the given coupon.
func ToDomainUsageReport(couponID string, in *api.UsageReport) models.UsageReport {
	report := models.UsageReport{CouponId: couponID, Rows: make([]models.UsageRow, len(in.Rows))}
	for i, row := range in.Rows {
		report.Rows[i] = models.UsageRow{
			Reference:      row.Reference,
			Timestamp:      row.Timestamp,
			Location:       row.Location,
			RechargeAmount: row.RechargeAmount,
			UsageAmount:    row.UsageAmount,
		}
	}
	return report
}

// ToApiAppendResult converts a committed append.
func ToApiAppendResult(res *storage.AppendResult, remaining *coupons.View, viewerID string) *api.AppendResult {
	out := &api.AppendResult{Appended: len(res.Appended), Duplicates: res.Duplicates}
	if remaining != nil {
		out.Coupon = ToApiCoupon(remaining, viewerID)
	}
	return out
}

// ToApiTransaction converts a domain Transaction model to an API Transaction model.
func ToApiTransaction(tx *models.Transaction) *api.Transaction {
	return &api.Transaction{
		Id:              parseUUID(tx.Id),
		CouponId:        parseUUID(tx.CouponId),
		BuyerId:         tx.BuyerId,
		SellerId:        tx.SellerId,
		Status:          api.TransactionStatus(tx.Status),
		AskingPrice:     tx.AskingPrice,
		SellerApproved:  tx.SellerApproved,
		SellerConfirmed: tx.SellerConfirmed,
		BuyerConfirmed:  tx.BuyerConfirmed,
		CodeProvisioned: tx.CodeProvisioned,
		ContactInfo:     optional(tx.ContactInfo),
		CancelReason:    optional(tx.CancelReason),
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
	}
}

// ToDomainApprove converts an API ApproveRequest model to the coordinator input.
func ToDomainApprove(in *api.ApproveRequest) coordinator.ApproveInput {
	out := coordinator.ApproveInput{ContactInfo: value(in.ContactInfo)}
	if in.Secret != nil {
		secret := ToDomainSecret(in.Secret)
		out.Secret = &secret
	}
	return out
}

// ToDomainProvision converts an API ProvisionRequest model to the coordinator input.
func ToDomainProvision(in *api.ProvisionRequest) coordinator.ProvisionInput {
	var out coordinator.ProvisionInput
	if in.Secret != nil {
		secret := ToDomainSecret(in.Secret)
		out.Secret = &secret
	}
	return out
}

// ToApiNotification converts a domain Notification model to an API Notification model.
func ToApiNotification(n *models.Notification) *api.Notification {
	return &api.Notification{
		Id:        parseUUID(n.Id),
		Message:   n.Message,
		Link:      optional(n.Link),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

// parseUUID returns the zero UUID for ids that are not UUIDs.
func parseUUID(id string) openapi_types.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return openapi_types.UUID{}
	}
	return parsed
}

func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

func value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
