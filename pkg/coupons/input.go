package coupons

import (
	"math"
	"strings"

	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/lifecycle"
	"github.com/chris/coupon-exchange/pkg/secrets"
)

// CreateCouponInput is a manually entered coupon. Amounts are minor units.
type CreateCouponInput struct {
	Company     string               `json:"company"`
	Description string               `json:"description,omitempty"`
	Value       int64                `json:"value"`
	Cost        int64                `json:"cost"`
	UsedValue   int64                `json:"used_value,omitempty"`
	Expiration  string               `json:"expiration,omitempty"`
	IsOneTime   bool                 `json:"is_one_time,omitempty"`
	Secret      secrets.CouponSecret `json:"secret"`
	ForSale     bool                 `json:"for_sale,omitempty"`
	AskingPrice int64                `json:"asking_price,omitempty"`
}

func (in *CreateCouponInput) Validate(op string) error {
	in.Company = strings.TrimSpace(in.Company)
	in.Expiration = strings.TrimSpace(in.Expiration)

	if in.Company == "" {
		return errs.Validationf(op, "company is required")
	}
	if in.Value <= 0 {
		return errs.Validationf(op, "value must be positive, got %d", in.Value)
	}
	if in.Cost < 0 {
		return errs.Validationf(op, "cost must not be negative, got %d", in.Cost)
	}
	if in.UsedValue < 0 || in.UsedValue > in.Value {
		return errs.Validationf(op, "used_value must be between 0 and %d, got %d", in.Value, in.UsedValue)
	}
	if in.AskingPrice < 0 {
		return errs.Validationf(op, "asking_price must not be negative, got %d", in.AskingPrice)
	}
	if _, _, err := lifecycle.ParseExpiration(in.Expiration); err != nil {
		return errs.Validationf(op, "expiration %q is not a date (YYYY-MM-DD) or RFC3339 timestamp", in.Expiration)
	}
	return nil
}

// ExtractedCoupon is the best-effort record produced by the text/image extraction collaborator.
// Amounts arrive in major units as they appear on the coupon.
type ExtractedCoupon struct {
	Company     string  `json:"company"`
	Description string  `json:"description,omitempty"`
	Value       float64 `json:"value"`
	Cost        float64 `json:"cost"`
	Expiration  string  `json:"expiration,omitempty"`
	Code        string  `json:"code,omitempty"`
	CVV         string  `json:"cvv,omitempty"`
	CardExpiry  string  `json:"card_expiry,omitempty"`
	IsOneTime   bool    `json:"is_one_time,omitempty"`
}

// ToInput maps the extraction onto the manual entry DTO; it is validated the same way.
func (e ExtractedCoupon) ToInput() CreateCouponInput {
	return CreateCouponInput{
		Company:     e.Company,
		Description: e.Description,
		Value:       toMinor(e.Value),
		Cost:        toMinor(e.Cost),
		Expiration:  e.Expiration,
		IsOneTime:   e.IsOneTime,
		Secret: secrets.CouponSecret{
			Code:       strings.TrimSpace(e.Code),
			CVV:        strings.TrimSpace(e.CVV),
			CardExpiry: strings.TrimSpace(e.CardExpiry),
		},
	}
}

func toMinor(major float64) int64 {
	return int64(math.Round(major * 100))
}

// ListingInput toggles a coupon's sale listing.
type ListingInput struct {
	ForSale     bool  `json:"for_sale"`
	AskingPrice int64 `json:"asking_price"`
}

func (in ListingInput) Validate(op string) error {
	if in.AskingPrice < 0 {
		return errs.Validationf(op, "asking_price must not be negative, got %d", in.AskingPrice)
	}
	return nil
}
