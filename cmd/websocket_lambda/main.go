package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/coupon-exchange/pkg/bootstrap"
	"github.com/chris/coupon-exchange/pkg/config"
	"github.com/chris/coupon-exchange/pkg/handlers/websockets"
)

// Route dispatches an API Gateway WebSocket event by its route key.
func Route(h *websockets.Handler) func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, request events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
		switch request.RequestContext.RouteKey {
		case "$connect":
			return h.HandleConnect(ctx, request)
		case "$disconnect":
			return h.HandleDisconnect(ctx, request)
		case "$default":
			return h.HandleDefault(ctx, request)
		default:
			slog.Warn("unknown route", "route_key", request.RequestContext.RouteKey)
			return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	bootstrap.SetupLogger(cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{ServiceName: "coupon-exchange-websocket"})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	lambda.Start(Route(websockets.NewHandler(app.Store, nil)))
}
