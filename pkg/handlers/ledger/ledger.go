package ledger

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/coupons"
	"github.com/chris/coupon-exchange/pkg/handlers/render"
	"github.com/chris/coupon-exchange/pkg/ledger"
	"github.com/chris/coupon-exchange/pkg/mapping"
	"github.com/chris/coupon-exchange/pkg/middleware"
	"github.com/chris/coupon-exchange/pkg/queue"
	"github.com/chris/coupon-exchange/pkg/storage"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// LedgerHandler holds the dependencies for ledger-related handlers.
type LedgerHandler struct {
	Ledger  *ledger.Service
	Coupons *coupons.Service
	// Reports defers usage reports to the usage report lambda. When nil, reports are
	// reconciled within the request.
	Reports queue.UsageReportEnqueuer
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerService *ledger.Service, couponService *coupons.Service, reports queue.UsageReportEnqueuer) *LedgerHandler {
	return &LedgerHandler{Ledger: ledgerService, Coupons: couponService, Reports: reports}
}

// ListLedgerEntries returns the coupon's ledger history.
func (h *LedgerHandler) ListLedgerEntries(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	entries, err := h.Ledger.Entries(r.Context(), middleware.UserID(r.Context()), couponId.String())
	if err != nil {
		render.Error(w, r, err)
		return
	}

	apiEntries := make([]*api.LedgerEntry, len(entries))
	for i := range entries {
		apiEntries[i] = mapping.ToApiLedgerEntry(&entries[i])
	}
	render.JSON(w, http.StatusOK, apiEntries)
}

// RecordUsage appends a manual usage entry.
func (h *LedgerHandler) RecordUsage(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	var in api.UsageRequest
	if !render.Decode(w, r, &in) {
		return
	}
	res, err := h.Ledger.RecordUsage(r.Context(), middleware.UserID(r.Context()), couponId.String(), mapping.ToDomainUsage(&in))
	h.respond(w, r, res, err)
}

// RecordRecharge appends a manual recharge entry.
func (h *LedgerHandler) RecordRecharge(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	var in api.RechargeRequest
	if !render.Decode(w, r, &in) {
		return
	}
	res, err := h.Ledger.RecordRecharge(r.Context(), middleware.UserID(r.Context()), couponId.String(), mapping.ToDomainRecharge(&in))
	h.respond(w, r, res, err)
}

// MarkFullyUsed consumes the coupon's remaining balance.
func (h *LedgerHandler) MarkFullyUsed(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	res, err := h.Ledger.MarkFullyUsed(r.Context(), middleware.UserID(r.Context()), couponId.String())
	h.respond(w, r, res, err)
}

// SubmitUsageReport reconciles an external usage report against the ledger, or queues it.
func (h *LedgerHandler) SubmitUsageReport(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	var in api.UsageReport
	if !render.Decode(w, r, &in) {
		return
	}

	userID := middleware.UserID(r.Context())
	report := mapping.ToDomainUsageReport(couponId.String(), &in)

	if err := h.Ledger.CheckOwner(r.Context(), userID, report.CouponId); err != nil {
		render.Error(w, r, err)
		return
	}

	if h.Reports == nil {
		res, err := h.Ledger.Reconcile(r.Context(), report)
		h.respond(w, r, res, err)
		return
	}
	if err := h.Reports.EnqueueUsageReport(r.Context(), report); err != nil {
		render.Error(w, r, fmt.Errorf("failed to queue usage report: %w", err))
		return
	}
	slog.Info("usage report queued", "coupon_id", report.CouponId, "rows", len(report.Rows))
	render.JSON(w, http.StatusAccepted, api.AppendResult{Queued: true})
}

func (h *LedgerHandler) respond(w http.ResponseWriter, r *http.Request, res *storage.AppendResult, err error) {
	if err != nil {
		render.Error(w, r, err)
		return
	}
	userID := middleware.UserID(r.Context())

	var view *coupons.View
	if res.Coupon != nil {
		view, err = h.Coupons.Present(res.Coupon)
		if err != nil {
			render.Error(w, r, err)
			return
		}
	}
	render.JSON(w, http.StatusOK, mapping.ToApiAppendResult(res, view, userID))
}
