// Package bootstrap wires the storage backend, notification channels and services from
// configuration. The API server and every lambda start from here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/coupon-exchange/pkg/config"
	"github.com/chris/coupon-exchange/pkg/coordinator"
	"github.com/chris/coupon-exchange/pkg/coupons"
	"github.com/chris/coupon-exchange/pkg/ledger"
	"github.com/chris/coupon-exchange/pkg/notify"
	"github.com/chris/coupon-exchange/pkg/queue"
	"github.com/chris/coupon-exchange/pkg/secrets"
	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/chris/coupon-exchange/pkg/storage/dynamodb"
	"github.com/chris/coupon-exchange/pkg/storage/memory"
	"github.com/chris/coupon-exchange/pkg/storage/postgres"
	"github.com/chris/coupon-exchange/pkg/tracing"
	"github.com/chris/coupon-exchange/pkg/websockets"
)

// Options adjusts the wiring per binary.
type Options struct {
	ServiceName string
	// LocalHub pushes notifications to WebSocket clients connected to this process when no
	// API Gateway endpoint is configured.
	LocalHub bool
}

// App holds everything a binary needs.
type App struct {
	Config       *config.Config
	Store        storage.Storage
	Box          *secrets.Box
	Hub          *websockets.Hub
	Dispatcher   *notify.Dispatcher
	Coupons      *coupons.Service
	Ledger       *ledger.Service
	Coordinator  *coordinator.Coordinator
	Inbox        *notify.Inbox
	UsageReports queue.UsageReportEnqueuer

	closers []func(context.Context) error
}

// SetupLogger installs a JSON slog logger at level as the default and returns it.
func SetupLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// New builds the App from cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (app *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	shutdown, err := tracing.Init(opts.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	app.closers = append(app.closers, shutdown)

	if app.Box, err = secrets.NewBoxFromBase64(cfg.SecretKey); err != nil {
		return nil, fmt.Errorf("invalid COUPON_SECRET_KEY: %w", err)
	}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg == nil {
			c, err := awsconfig.LoadDefaultConfig(ctx)
			if err != nil {
				return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
			}
			awsCfg = &c
		}
		return *awsCfg, nil
	}

	if app.Store, err = app.openStore(ctx, loadAWS); err != nil {
		return nil, err
	}

	var publisher websockets.Publisher
	switch {
	case cfg.WebSocketAPI != "":
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		publisher = websockets.NewAPIGatewayPublisher(c, app.Store, cfg.WebSocketAPI)
	case opts.LocalHub:
		app.Hub = websockets.NewHub()
		publisher = app.Hub
	}

	var email queue.EmailEnqueuer
	if cfg.EmailQueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		email = queue.NewSQSQueue(app.sqsClient(c), cfg.EmailQueueURL)
	}
	if cfg.UsageQueueURL != "" {
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		app.UsageReports = queue.NewSQSQueue(app.sqsClient(c), cfg.UsageQueueURL)
	}

	app.Dispatcher = notify.NewDispatcher(app.Store, publisher, email)
	app.Coupons = coupons.NewService(app.Store, app.Box, app.Dispatcher)
	app.Ledger = ledger.NewService(app.Store, app.Dispatcher)
	app.Coordinator = coordinator.New(app.Store, app.Box, app.Dispatcher)
	app.Inbox = notify.NewInbox(app.Store)

	slog.Info("application wired",
		"service", opts.ServiceName,
		"backend", cfg.Backend,
		"websocket_push", publisher != nil,
		"email_queue", email != nil,
		"usage_report_queue", app.UsageReports != nil,
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context, loadAWS func() (aws.Config, error)) (storage.Storage, error) {
	cfg := a.Config
	switch cfg.Backend {
	case config.BackendDynamoDB:
		c, err := loadAWS()
		if err != nil {
			return nil, err
		}
		client := awsdynamodb.NewFromConfig(c, func(o *awsdynamodb.Options) {
			if cfg.AWSEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			}
		})
		return dynamodb.New(client, dynamodb.Tables{
			Coupons:       cfg.Tables.Coupons,
			Ledger:        cfg.Tables.Ledger,
			Transactions:  cfg.Tables.Transactions,
			Notifications: cfg.Tables.Notifications,
			Connections:   cfg.Tables.Connections,
		}), nil
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return db.Close() })
		store := postgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		slog.Warn("using in-memory storage, data is lost on exit")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) sqsClient(c aws.Config) *sqs.Client {
	return sqs.NewFromConfig(c, func(o *sqs.Options) {
		if a.Config.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(a.Config.AWSEndpoint)
		}
	})
}

// Close waits for pending notification deliveries, then releases resources in reverse order.
func (a *App) Close(ctx context.Context) error {
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
