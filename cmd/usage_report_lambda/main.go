package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/coupon-exchange/pkg/bootstrap"
	"github.com/chris/coupon-exchange/pkg/config"
	"github.com/chris/coupon-exchange/pkg/errs"
	"github.com/chris/coupon-exchange/pkg/models"
	"github.com/chris/coupon-exchange/pkg/storage"
)

// Reconciler applies a usage report to the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, report models.UsageReport) (*storage.AppendResult, error)
}

// Handler reconciles the usage reports the API queued.
type Handler struct {
	Ledger Reconciler
}

// HandleRequest processes each SQS message independently. Reports that can never succeed
// (malformed, invalid, unknown coupon) are logged and dropped; anything else is reported as a
// batch item failure so SQS retries only that message.
func (h *Handler) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, message := range sqsEvent.Records {
		var report models.UsageReport
		if err := json.Unmarshal([]byte(message.Body), &report); err != nil {
			slog.Error("dropping malformed usage report", "message_id", message.MessageId, "error", err)
			continue
		}

		res, err := h.Ledger.Reconcile(ctx, report)
		if err != nil {
			if errs.Is(err, errs.Validation) || errs.Is(err, errs.NotFound) {
				slog.Error("dropping rejected usage report", "message_id", message.MessageId, "coupon_id", report.CouponId, "error", err)
				continue
			}
			slog.Error("failed to reconcile usage report", "message_id", message.MessageId, "coupon_id", report.CouponId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: message.MessageId})
			continue
		}

		slog.Info("usage report reconciled",
			"message_id", message.MessageId,
			"coupon_id", report.CouponId,
			"appended", len(res.Appended),
			"duplicates", res.Duplicates,
		)
	}
	return resp, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	bootstrap.SetupLogger(cfg.LogLevel)

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{ServiceName: "coupon-exchange-usage-reports"})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	h := &Handler{Ledger: app.Ledger}
	lambda.Start(func(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
		resp, err := h.HandleRequest(ctx, sqsEvent)
		app.Dispatcher.Wait()
		return resp, err
	})
}
