package transactions

import (
	"net/http"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/coordinator"
	"github.com/chris/coupon-exchange/pkg/handlers/render"
	"github.com/chris/coupon-exchange/pkg/mapping"
	"github.com/chris/coupon-exchange/pkg/middleware"
	"github.com/chris/coupon-exchange/pkg/models"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// TransactionsHandler holds the dependencies for transaction-related handlers.
type TransactionsHandler struct {
	Coordinator *coordinator.Coordinator
}

// NewTransactionsHandler creates a new TransactionsHandler.
func NewTransactionsHandler(co *coordinator.Coordinator) *TransactionsHandler {
	return &TransactionsHandler{Coordinator: co}
}

// RequestTransaction opens a handshake for the coupon on behalf of the caller.
func (h *TransactionsHandler) RequestTransaction(w http.ResponseWriter, r *http.Request, couponId openapi_types.UUID) {
	tx, err := h.Coordinator.Request(r.Context(), middleware.UserID(r.Context()), couponId.String())
	h.respond(w, r, http.StatusCreated, tx, err)
}

// ListTransactions returns the transactions the caller is party to.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coordinator.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	apiTxs := make([]*api.Transaction, len(list))
	for i := range list {
		apiTxs[i] = mapping.ToApiTransaction(&list[i])
	}
	render.JSON(w, http.StatusOK, apiTxs)
}

// GetTransaction returns a single transaction to its buyer or seller.
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	tx, err := h.Coordinator.Get(r.Context(), middleware.UserID(r.Context()), transactionId.String())
	h.respond(w, r, http.StatusOK, tx, err)
}

// ApproveTransaction records the seller's approval.
func (h *TransactionsHandler) ApproveTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	var in api.ApproveRequest
	if !render.Decode(w, r, &in) {
		return
	}
	tx, err := h.Coordinator.Approve(r.Context(), middleware.UserID(r.Context()), transactionId.String(), mapping.ToDomainApprove(&in))
	h.respond(w, r, http.StatusOK, tx, err)
}

// DeclineTransaction records the seller's refusal.
func (h *TransactionsHandler) DeclineTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	tx, err := h.Coordinator.Decline(r.Context(), middleware.UserID(r.Context()), transactionId.String())
	h.respond(w, r, http.StatusOK, tx, err)
}

// CancelTransaction withdraws the buyer's request.
func (h *TransactionsHandler) CancelTransaction(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	tx, err := h.Coordinator.Cancel(r.Context(), middleware.UserID(r.Context()), transactionId.String())
	h.respond(w, r, http.StatusOK, tx, err)
}

// ProvisionCode hands the coupon's code to the buyer. An empty body provisions the stored code.
func (h *TransactionsHandler) ProvisionCode(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	var in api.ProvisionRequest
	if r.ContentLength != 0 && !render.Decode(w, r, &in) {
		return
	}
	tx, err := h.Coordinator.ProvisionCode(r.Context(), middleware.UserID(r.Context()), transactionId.String(), mapping.ToDomainProvision(&in))
	h.respond(w, r, http.StatusOK, tx, err)
}

// ConfirmPaymentSent records the buyer's confirmation.
func (h *TransactionsHandler) ConfirmPaymentSent(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	tx, err := h.Coordinator.ConfirmPaymentSent(r.Context(), middleware.UserID(r.Context()), transactionId.String())
	h.respond(w, r, http.StatusOK, tx, err)
}

// ConfirmPaymentReceived records the seller's confirmation and completes the transfer.
func (h *TransactionsHandler) ConfirmPaymentReceived(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	tx, err := h.Coordinator.ConfirmPaymentReceived(r.Context(), middleware.UserID(r.Context()), transactionId.String())
	h.respond(w, r, http.StatusOK, tx, err)
}

// RevealTransactionSecret returns the provisioned code to the buyer.
func (h *TransactionsHandler) RevealTransactionSecret(w http.ResponseWriter, r *http.Request, transactionId openapi_types.UUID) {
	secret, err := h.Coordinator.RevealSecret(r.Context(), middleware.UserID(r.Context()), transactionId.String())
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, http.StatusOK, mapping.ToApiSecret(secret))
}

func (h *TransactionsHandler) respond(w http.ResponseWriter, r *http.Request, status int, tx *models.Transaction, err error) {
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, status, mapping.ToApiTransaction(tx))
}
