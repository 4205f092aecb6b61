package notifications

import (
	"net/http"

	"github.com/chris/coupon-exchange/pkg/api"
	"github.com/chris/coupon-exchange/pkg/handlers/render"
	"github.com/chris/coupon-exchange/pkg/mapping"
	"github.com/chris/coupon-exchange/pkg/middleware"
	"github.com/chris/coupon-exchange/pkg/notify"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// NotificationsHandler serves the caller's notification inbox.
type NotificationsHandler struct {
	Inbox *notify.Inbox
}

// NewNotificationsHandler creates a new NotificationsHandler.
func NewNotificationsHandler(inbox *notify.Inbox) *NotificationsHandler {
	return &NotificationsHandler{Inbox: inbox}
}

func (h *NotificationsHandler) ListNotifications(w http.ResponseWriter, r *http.Request, params api.ListNotificationsParams) {
	var limit int32
	if params.Limit != nil {
		limit = *params.Limit
	}

	list, err := h.Inbox.List(r.Context(), middleware.UserID(r.Context()), limit)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	out := make([]*api.Notification, len(list))
	for i := range list {
		out[i] = mapping.ToApiNotification(&list[i])
	}
	render.JSON(w, http.StatusOK, out)
}

func (h *NotificationsHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, notificationId openapi_types.UUID) {
	if err := h.Inbox.MarkRead(r.Context(), middleware.UserID(r.Context()), notificationId.String()); err != nil {
		render.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
