package coupons

import (
	"net/http"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/coupons"
	"github.com/chris/coupon-exchange/pkg/handlers/render"
	"github.com/chris/coupon-exchange/pkg/mapping"
	"github.com/chris/coupon-exchange/pkg/middleware"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// CouponsHandler holds the dependencies for coupon-related handlers.
type CouponsHandler struct {
	Service *coupons.Service
}

// NewCouponsHandler creates a new CouponsHandler.
func NewCouponsHandler(service *coupons.Service) *CouponsHandler {
	return &CouponsHandler{Service: service}
}

// ListOwnedCoupons returns the caller's coupons.
func (h *CouponsHandler) ListOwnedCoupons(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	views, err := h.Service.ListOwned(r.Context(), userID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mapping.ToApiCoupons(views, userID))
}

// CreateCoupon registers a manually entered coupon.
func (h *CouponsHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var in api.NewCoupon
	if !render.Decode(w, r, &in) {
		return
	}

	userID := middleware.UserID(r.Context())
	view, err := h.Service.Create(r.Context(), userID, mapping.ToDomainNewCoupon(&in))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusCreated, mapping.ToApiCoupon(view, userID))
}

// CreateExtractedCoupon registers a coupon from an extraction record.
func (h *CouponsHandler) CreateExtractedCoupon(w http.ResponseWriter, r *http.Request) {
	var in api.ExtractedCoupon
	if !render.Decode(w, r, &in) {
		return
	}

	userID := middleware.UserID(r.Context())
	view, err := h.Service.CreateFromExtraction(r.Context(), userID, mapping.ToDomainExtractedCoupon(&in))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusCreated, mapping.ToApiCoupon(view, userID))
}

// ListMarket returns the coupons the caller could request.
func (h *CouponsHandler) ListMarket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	views, err := h.Service.ListMarket(r.Context(), userID)
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mapping.ToApiCoupons(views, userID))
}

// GetCoupon returns a single coupon.
func (h *CouponsHandler) GetCoupon(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	userID := middleware.UserID(r.Context())
	view, err := h.Service.Get(r.Context(), userID, couponId.String())
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mapping.ToApiCoupon(view, userID))
}

// SetListing lists or unlists a coupon.
func (h *CouponsHandler) SetListing(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	var in api.Listing
	if !render.Decode(w, r, &in) {
		return
	}

	userID := middleware.UserID(r.Context())
	view, err := h.Service.SetListing(r.Context(), userID, couponId.String(), mapping.ToDomainListing(&in))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mapping.ToApiCoupon(view, userID))
}

// RevealCouponSecret returns the coupon's code to its owner.
func (h *CouponsHandler) RevealCouponSecret(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	secret, err := h.Service.RevealSecret(r.Context(), middleware.UserID(r.Context()), couponId.String())
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mapping.ToApiSecret(secret))
}
