package handlers

import (
	"log/slog"
	"net/http"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/handlers/coupons"
	"github.com/chris/coupon-exchange/pkg/handlers/ledger"
	"github.com/chris/coupon-exchange/pkg/handlers/notifications"
	"github.com/chris/coupon-exchange/pkg/handlers/render"
	"github.com/chris/coupon-exchange/pkg/handlers/transactions"
	"github.com/chris/coupon-exchange/pkg/metrics"
	"github.com/chris/coupon-exchange/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// ApiHandler implements the server interface by composing the handlers of each resource.
type ApiHandler struct {
	*coupons.CouponsHandler
	*ledger.LedgerHandler
	*transactions.TransactionsHandler
	*notifications.NotificationsHandler
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(
	couponsHandler *coupons.CouponsHandler,
	ledgerHandler *ledger.LedgerHandler,
	transactionsHandler *transactions.TransactionsHandler,
	notificationsHandler *notifications.NotificationsHandler,
) *ApiHandler {
	return &ApiHandler{
		CouponsHandler:       couponsHandler,
		LedgerHandler:        ledgerHandler,
		TransactionsHandler:  transactionsHandler,
		NotificationsHandler: notificationsHandler,
	}
}

// Make sure we conform to the interface
var _ api.ServerInterface = (*ApiHandler)(nil)

// NewRouter mounts the API behind the identity middleware, plus the unauthenticated
// health, metrics and local WebSocket endpoints. ws may be nil.
func NewRouter(logger *slog.Logger, handler api.ServerInterface, ws http.Handler) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.NewStructuredLogger(logger))
	router.Use(chimiddleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.Handler())
	if ws != nil {
		router.Handle("/ws", ws)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		api.HandlerWithOptions(handler, r, render.ParamError)
	})
	return router
}
