// Package postgres implements the storage interfaces on PostgreSQL through database/sql and
// lib/pq. Multi-row writes run in a SERIALIZABLE transaction that first locks the coupon row
// with SELECT ... FOR UPDATE.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/chris/coupon-exchange/pkg/storage"
	"github.com/lib/pq"
)

const (
	pgUniqueViolationCode     = "23505"
	pgSerializationFailedCode = "40001"
	ledgerPrimaryKey          = "ledger_entries_pkey"
)

//go:embed schema.sql
var schema string

// Store implements the Storage interface on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// Open connects to the database at dsn and checks that it answers.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return db, nil
}

// New creates a Store on an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// withTx runs fn in a SERIALIZABLE transaction and commits it if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// translate maps driver errors that mean "lost a race" onto storage sentinels.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pgSerializationFailedCode:
		return fmt.Errorf("%w: %v", storage.ErrVersionConflict, err)
	case pgUniqueViolationCode:
		if pqErr.Constraint == ledgerPrimaryKey {
			return storage.ErrDuplicateLedgerEntry
		}
	}
	return err
}

// affected returns sentinel when the statement touched no row.
func affected(res sql.Result, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel
	}
	return nil
}

func utc(t *time.Time) {
	if t != nil {
		*t = t.UTC()
	}
}
