package websockets

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chris/coupon-exchange/pkg/middleware"
	"github.com/chris/coupon-exchange/pkg/websockets"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler handles WebSocket connections.
type Handler struct {
	connManager websockets.ConnectionManager
	hub         *websockets.Hub
}

// NewHandler creates a new Handler. hub is only used by the local development server and may be nil.
func NewHandler(connManager websockets.ConnectionManager, hub *websockets.Hub) *Handler {
	return &Handler{
		connManager: connManager,
		hub:         hub,
	}
}

// HandleConnect records the connection against the user the gateway authorizer resolved.
func (h *Handler) HandleConnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := request.RequestContext.ConnectionID
	userID := authorizedUser(request)
	if userID == "" {
		slog.Warn("rejecting unauthenticated connection", "connectionId", connectionID)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized}, nil
	}
	slog.Info("Client connected", "connectionId", connectionID, "user_id", userID)

	if err := h.connManager.AddConnection(ctx, connectionID, userID); err != nil {
		slog.Error("failed to save connection ID", "error", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, err
	}

	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

// HandleDisconnect handles client disconnections.
func (h *Handler) HandleDisconnect(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	slog.Info("Client disconnected", "connectionId", request.RequestContext.ConnectionID)

	if err := h.connManager.RemoveConnection(ctx, request.RequestContext.ConnectionID); err != nil {
		slog.Error("failed to delete connection ID", "error", err)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, err
	}

	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

// HandleDefault handles messages sent from a client. Clients are not expected to send any.
func (h *Handler) HandleDefault(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	slog.Info("Received message", "connectionId", request.RequestContext.ConnectionID, "body", request.Body)
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

// authorizedUser reads the principal a Lambda authorizer attached to the $connect request.
func authorizedUser(request events.APIGatewayWebsocketProxyRequest) string {
	claims, ok := request.RequestContext.Authorizer.(map[string]interface{})
	if !ok {
		return ""
	}
	for _, key := range []string{"user_id", "principalId"} {
		if id, ok := claims[key].(string); ok && strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections by default for local development.
		return true
	},
}

// ServeHTTP handles WebSocket requests for the local development server. Browsers cannot set
// headers on the upgrade request, so the user may also be passed as ?user_id=.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(middleware.UserIDHeader))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if userID == "" {
		http.Error(w, "missing user id", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	connectionID := uuid.New().String()
	slog.Info("Client connected locally", "connectionId", connectionID, "user_id", userID)

	if h.hub != nil {
		h.hub.Register(connectionID, userID, conn)
		defer h.hub.Unregister(connectionID)
	}

	ctx := r.Context()
	if err := h.connManager.AddConnection(ctx, connectionID, userID); err != nil {
		slog.Error("failed to save local connection ID", "error", err)
		return
	}
	defer func() {
		slog.Info("Client disconnected locally", "connectionId", connectionID)
		if err := h.connManager.RemoveConnection(context.WithoutCancel(ctx), connectionID); err != nil {
			slog.Error("failed to delete local connection ID", "error", err)
		}
	}()

	// Reading is only how a disconnect is detected.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("unexpected close error", "error", err)
			}
			break
		}
	}
}
