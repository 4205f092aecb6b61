// Package config reads the settings shared by the API server and the lambdas from the
// environment, after loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const defaultHandshakeTimeout = 7 * 24 * time.Hour

// Tables holds the DynamoDB table names.
type Tables struct {
	Coupons       string
	Ledger        string
	Transactions  string
	Notifications string
	Connections   string
}

// Config is the process configuration.
type Config struct {
	Port             string
	LogLevel         slog.Level
	Backend          string
	Tables           Tables
	DatabaseURL      string
	EmailQueueURL    string
	UsageQueueURL    string
	WebSocketAPI     string
	SecretKey        string
	HandshakeTimeout time.Duration
	JaegerEndpoint   string
	AWSEndpoint      string
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Backend:     getEnv("STORAGE_BACKEND", BackendDynamoDB),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Tables: Tables{
			Coupons:       os.Getenv("COUPONS_TABLE_NAME"),
			Ledger:        os.Getenv("LEDGER_TABLE_NAME"),
			Transactions:  os.Getenv("TRANSACTIONS_TABLE_NAME"),
			Notifications: os.Getenv("NOTIFICATIONS_TABLE_NAME"),
			Connections:   os.Getenv("CONNECTIONS_TABLE_NAME"),
		},
		EmailQueueURL:    os.Getenv("EMAIL_QUEUE_URL"),
		UsageQueueURL:    os.Getenv("USAGE_REPORT_QUEUE_URL"),
		WebSocketAPI:     os.Getenv("WEBSOCKET_ENDPOINT"),
		SecretKey:        os.Getenv("COUPON_SECRET_KEY"),
		JaegerEndpoint:   os.Getenv("JAEGER_ENDPOINT"),
		AWSEndpoint:      os.Getenv("AWS_ENDPOINT_URL"),
		HandshakeTimeout: defaultHandshakeTimeout,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "INFO"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if raw := os.Getenv("HANDSHAKE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HANDSHAKE_TIMEOUT: %w", err)
		}
		cfg.HandshakeTimeout = d
	}
	return cfg, nil
}

// Validate reports every setting the chosen backend needs but does not have.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.Backend {
	case BackendDynamoDB:
		require("COUPONS_TABLE_NAME", c.Tables.Coupons)
		require("LEDGER_TABLE_NAME", c.Tables.Ledger)
		require("TRANSACTIONS_TABLE_NAME", c.Tables.Transactions)
		require("NOTIFICATIONS_TABLE_NAME", c.Tables.Notifications)
		require("CONNECTIONS_TABLE_NAME", c.Tables.Connections)
	case BackendPostgres:
		require("DATABASE_URL", c.DatabaseURL)
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Backend)
	}
	require("COUPON_SECRET_KEY", c.SecretKey)

	if c.HandshakeTimeout <= 0 {
		return errors.New("HANDSHAKE_TIMEOUT must be positive")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
