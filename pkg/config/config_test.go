package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "")
		t.Setenv("PORT", "")
		t.Setenv("LOG_LEVEL", "")
		t.Setenv("HANDSHAKE_TIMEOUT", "")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, BackendDynamoDB, cfg.Backend)
		assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
		assert.Equal(t, 168*time.Hour, cfg.HandshakeTimeout)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", BackendPostgres)
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("HANDSHAKE_TIMEOUT", "48h")
		t.Setenv("DATABASE_URL", "postgres://localhost/coupons")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, BackendPostgres, cfg.Backend)
		assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
		assert.Equal(t, 48*time.Hour, cfg.HandshakeTimeout)
		assert.Equal(t, "postgres://localhost/coupons", cfg.DatabaseURL)
	})

	t.Run("Bad Timeout", func(t *testing.T) {
		t.Setenv("HANDSHAKE_TIMEOUT", "a week")

		_, err := Load()

		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("DynamoDB Needs Tables", func(t *testing.T) {
		cfg := &Config{Backend: BackendDynamoDB, SecretKey: "k", HandshakeTimeout: time.Hour}

		err := cfg.Validate()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "COUPONS_TABLE_NAME")
		assert.Contains(t, err.Error(), "CONNECTIONS_TABLE_NAME")
	})

	t.Run("Postgres Needs URL", func(t *testing.T) {
		cfg := &Config{Backend: BackendPostgres, SecretKey: "k", HandshakeTimeout: time.Hour}

		err := cfg.Validate()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("Memory", func(t *testing.T) {
		cfg := &Config{Backend: BackendMemory, SecretKey: "k", HandshakeTimeout: time.Hour}

		assert.NoError(t, cfg.Validate())
	})

	t.Run("Unknown Backend", func(t *testing.T) {
		cfg := &Config{Backend: "sqlite", SecretKey: "k", HandshakeTimeout: time.Hour}

		assert.Error(t, cfg.Validate())
	})

	t.Run("Secret Key Required", func(t *testing.T) {
		cfg := &Config{Backend: BackendMemory, HandshakeTimeout: time.Hour}

		err := cfg.Validate()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "COUPON_SECRET_KEY")
	})
}
