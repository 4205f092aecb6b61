package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /coupons)
	ListOwnedCoupons(w http.ResponseWriter, r *http.Request)
	// (POST /coupons)
	CreateCoupon(w http.ResponseWriter, r *http.Request)
	// (POST /coupons/extracted)
	CreateExtractedCoupon(w http.ResponseWriter, r *http.Request)
	// (GET /market)
	ListMarket(w http.ResponseWriter, r *http.Request)
	// (GET /coupons/{couponId})
	GetCoupon(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (PUT /coupons/{couponId}/listing)
	SetListing(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (GET /coupons/{couponId}/secret)
	RevealCouponSecret(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (GET /coupons/{couponId}/ledger)
	ListLedgerEntries(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (POST /coupons/{couponId}/usage)
	RecordUsage(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (POST /coupons/{couponId}/recharge)
	RecordRecharge(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (POST /coupons/{couponId}/mark-used)
	MarkFullyUsed(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (POST /coupons/{couponId}/usage-reports)
	SubmitUsageReport(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (POST /coupons/{couponId}/transactions)
	RequestTransaction(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID)
	// (GET /transactions)
	ListTransactions(w http.ResponseWriter, r *http.Request)
	// (GET /transactions/{transactionId})
	GetTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/approve)
	ApproveTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/decline)
	DeclineTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/cancel)
	CancelTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/provision)
	ProvisionCode(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/confirm-sent)
	ConfirmPaymentSent(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (POST /transactions/{transactionId}/confirm-received)
	ConfirmPaymentReceived(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (GET /transactions/{transactionId}/secret)
	RevealTransactionSecret(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID)
	// (GET /notifications)
	ListNotifications(w http.ResponseWriter, r *http.Request, params ListNotificationsParams)
	// (POST /notifications/{notificationId}/read)
	MarkNotificationRead(w http.ResponseWriter, r *http.Request, notificationId openapi_types.UUID)
}

// InvalidParamFormatError is passed to the error handler when a parameter does not bind.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ServerInterfaceWrapper converts path and query parameters before calling the handler.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

type uuidHandler func(w http.ResponseWriter, r *http.Request, id openapi_types.UUID)

// withUUID binds the named path parameter as a UUID.
func (siw *ServerInterfaceWrapper) withUUID(name string, next uuidHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id openapi_types.UUID
		err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
			return
		}
		next(w, r, id)
	}
}

func (siw *ServerInterfaceWrapper) listNotifications(w http.ResponseWriter, r *http.Request) {
	var params ListNotificationsParams
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "limit", Err: err})
		return
	}
	siw.Handler.ListNotifications(w, r, params)
}

// HandlerFromMux mounts every route of si on r.
func HandlerFromMux(si ServerInterface, r chi.Router) http.Handler {
	return HandlerWithOptions(si, r, func(w http.ResponseWriter, r *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusBadRequest)
	})
}

// HandlerWithOptions mounts every route of si on r with a custom parameter error handler.
func HandlerWithOptions(si ServerInterface, r chi.Router, errorHandler func(w http.ResponseWriter, r *http.Request, err error)) http.Handler {
	siw := &ServerInterfaceWrapper{Handler: si, ErrorHandlerFunc: errorHandler}

	r.Get("/coupons", si.ListOwnedCoupons)
	r.Post("/coupons", si.CreateCoupon)
	r.Post("/coupons/extracted", si.CreateExtractedCoupon)
	r.Get("/market", si.ListMarket)
	r.Get("/coupons/{couponId}", siw.withUUID("couponId", si.GetCoupon))
	r.Put("/coupons/{couponId}/listing", siw.withUUID("couponId", si.SetListing))
	r.Get("/coupons/{couponId}/secret", siw.withUUID("couponId", si.RevealCouponSecret))
	r.Get("/coupons/{couponId}/ledger", siw.withUUID("couponId", si.ListLedgerEntries))
	r.Post("/coupons/{couponId}/usage", siw.withUUID("couponId", si.RecordUsage))
	r.Post("/coupons/{couponId}/recharge", siw.withUUID("couponId", si.RecordRecharge))
	r.Post("/coupons/{couponId}/mark-used", siw.withUUID("couponId", si.MarkFullyUsed))
	r.Post("/coupons/{couponId}/usage-reports", siw.withUUID("couponId", si.SubmitUsageReport))
	r.Post("/coupons/{couponId}/transactions", siw.withUUID("couponId", si.RequestTransaction))
	r.Get("/transactions", si.ListTransactions)
	r.Get("/transactions/{transactionId}", siw.withUUID("transactionId", si.GetTransaction))
	r.Post("/transactions/{transactionId}/approve", siw.withUUID("transactionId", si.ApproveTransaction))
	r.Post("/transactions/{transactionId}/decline", siw.withUUID("transactionId", si.DeclineTransaction))
	r.Post("/transactions/{transactionId}/cancel", siw.withUUID("transactionId", si.CancelTransaction))
	r.Post("/transactions/{transactionId}/provision", siw.withUUID("transactionId", si.ProvisionCode))
	r.Post("/transactions/{transactionId}/confirm-sent", siw.withUUID("transactionId", si.ConfirmPaymentSent))
	r.Post("/transactions/{transactionId}/confirm-received", siw.withUUID("transactionId", si.ConfirmPaymentReceived))
	r.Get("/transactions/{transactionId}/secret", siw.withUUID("transactionId", si.RevealTransactionSecret))
	r.Get("/notifications", siw.listNotifications)
	r.Post("/notifications/{notificationId}/read", siw.withUUID("notificationId", si.MarkNotificationRead))

	return r
}
