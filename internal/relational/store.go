// Package relational is the primary store. It owns the schema, the
// versioned migrations, and the monotonic vector-id sequence that the
// write coordinator leans on.
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// Store wraps the relational database behind typed operations.
type Store struct {
	db     *sqlx.DB
	driver string
	logger logging.Logger
}

// Open connects to the configured backend, applies migrations under an
// exclusive lock, and verifies the schema. It fails fast on any of
// those steps.
func Open(ctx context.Context, cfg config.RelationalConfig, logger logging.Logger) (*Store, error) {
	s, err := Connect(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.VerifySchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Connect opens the database without touching the schema, for tooling
// that inspects or verifies an existing deployment.
func Connect(ctx context.Context, cfg config.RelationalConfig, logger logging.Logger) (*Store, error) {
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite3":
		dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path)
		db, err = sqlx.ConnectContext(ctx, "sqlite3", dsn)
	case "postgres":
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	default:
		return nil, apperrors.New(apperrors.ErrorCodeConfig,
			fmt.Sprintf("unknown relational driver: %s", cfg.Driver), nil)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeRelational, "connecting to relational store", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.Driver == "sqlite3" {
		// One writer at a time keeps the WAL happy under concurrent handlers.
		db.SetMaxOpenConns(1)
	}

	return &Store{db: db, driver: cfg.Driver, logger: logger.WithComponent("relational")}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeRelational, "pinging relational store", err)
	}
	return nil
}

// BeginTx opens a write transaction for the coordinator.
func (s *Store) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorCodeRelational, "opening transaction", err)
	}
	return tx, nil
}

// rebind adapts ? bindvars to the active driver's placeholder style.
func (s *Store) rebind(query string) string { return s.db.Rebind(query) }

// insertReturningID runs an INSERT and reports the new row id across
// both drivers.
func (s *Store) insertReturningID(ctx context.Context, q sqlx.ExtContext, query string, args ...interface{}) (int64, error) {
	if s.driver == "postgres" {
		var id int64
		row := q.QueryRowxContext(ctx, s.rebind(query+" RETURNING id"), args...)
		if err := row.Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// storageErr classifies a database error, mapping missing rows to
// NotFound for the given entity.
func storageErr(op string, entity string, id interface{}, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(entity, id)
	}
	if isUniqueViolation(err) {
		return apperrors.New(apperrors.ErrorCodeAlreadyExists,
			fmt.Sprintf("%s already exists", entity),
			map[string]interface{}{"entity": entity, "id": id})
	}
	return apperrors.Wrap(apperrors.ErrorCodeRelational, op, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
