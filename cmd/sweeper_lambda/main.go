package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/coupon-exchange/pkg/bootstrap"
	"github.com/chris/coupon-exchange/pkg/config"
)

// StalledExpirer cancels handshakes that stopped moving.
type StalledExpirer interface {
	ExpireStalled(ctx context.Context, olderThan time.Duration) (int, error)
}

// Reevaluator re-derives coupon statuses at the current time.
type Reevaluator interface {
	Reevaluate(ctx context.Context) (int, error)
}

// Sweeper runs the periodic maintenance triggered by an EventBridge schedule.
type Sweeper struct {
	Transactions     StalledExpirer
	Coupons          Reevaluator
	HandshakeTimeout time.Duration
}

// HandleRequest times out stalled handshakes first, so their coupons are back on the market
// before expirations are evaluated. Both steps run even if the other fails.
func (s *Sweeper) HandleRequest(ctx context.Context, event events.CloudWatchEvent) error {
	slog.Info("starting sweep", "event_id", event.ID, "handshake_timeout", s.HandshakeTimeout.String())

	var errs []error
	cancelled, err := s.Transactions.ExpireStalled(ctx, s.HandshakeTimeout)
	if err != nil {
		errs = append(errs, fmt.Errorf("expire stalled transactions: %w", err))
	}
	updated, err := s.Coupons.Reevaluate(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("reevaluate coupons: %w", err))
	}

	slog.Info("sweep finished", "transactions_cancelled", cancelled, "coupons_updated", updated)
	return errors.Join(errs...)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	bootstrap.SetupLogger(cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{ServiceName: "coupon-exchange-sweeper"})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	s := &Sweeper{Transactions: app.Coordinator, Coupons: app.Coupons, HandshakeTimeout: cfg.HandshakeTimeout}
	lambda.Start(func(ctx context.Context, event events.CloudWatchEvent) error {
		err := s.HandleRequest(ctx, event)
		app.Dispatcher.Wait()
		return err
	})
}
