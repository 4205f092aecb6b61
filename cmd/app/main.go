package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris/coupon-exchange/pkg/bootstrap"
	"github.com/chris/coupon-exchange/pkg/config"
	"github.com/chris/coupon-exchange/pkg/handlers"
	"github.com/chris/coupon-exchange/pkg/handlers/coupons"
	"github.com/chris/coupon-exchange/pkg/handlers/ledger"
	"github.com/chris/coupon-exchange/pkg/handlers/notifications"
	"github.com/chris/coupon-exchange/pkg/handlers/transactions"
	"github.com/chris/coupon-exchange/pkg/handlers/websockets"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := bootstrap.SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{ServiceName: "coupon-exchange-api", LocalHub: true})
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	handler := handlers.NewApiHandler(
		coupons.NewCouponsHandler(app.Coupons),
		ledger.NewLedgerHandler(app.Ledger, app.Coupons, app.UsageReports),
		transactions.NewTransactionsHandler(app.Coordinator),
		notifications.NewNotificationsHandler(app.Inbox),
	)

	var ws http.Handler
	if app.Hub != nil {
		ws = websockets.NewHandler(app.Store, app.Hub)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(logger, handler, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "backend", cfg.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error("failed to release resources", "error", err)
	}
	slog.Info("server stopped")
}
