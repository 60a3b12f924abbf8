// Package postgres implements the storefront repositories and the checkout
// ledger on PostgreSQL. Requests run under the storefront_app role with the
// caller's identity in app.user_id, so row-level security policies decide
// what each caller may read and write.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/checkout"
	"github.com/imrishuroy/go-storefront/internal/remote"
)

// AppRole is the database role request transactions switch to.
const AppRole = "storefront_app"

// PostgreSQL error codes the repositories react to.
const (
	codeInsufficientPrivilege = "42501"
	codeSerializationFailure  = "40001"
	codeDeadlockDetected      = "40P01"
)

// DB wraps the connection pool.
type DB struct {
	x *sqlx.DB
}

// Open connects and pings the database.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	x, err := sqlx.ConnectContext(ctx, "pgx", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	x.SetMaxOpenConns(20)
	x.SetMaxIdleConns(5)
	x.SetConnMaxLifetime(30 * time.Minute)
	return &DB{x: x}, nil
}

// Close closes the pool.
func (d *DB) Close() error {
	return d.x.Close()
}

// PingContext checks connectivity.
func (d *DB) PingContext(ctx context.Context) error {
	return classify("ping", d.x.PingContext(ctx))
}

// asCaller runs fn in a transaction bound to caller. An anonymous caller gets
// an empty identity, which no owner policy matches.
func (d *DB) asCaller(ctx context.Context, caller auth.Caller, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.x.BeginTxx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "SET LOCAL ROLE "+AppRole); err != nil {
		return classify("set role", err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT set_config('app.user_id', $1, true)", caller.ID); err != nil {
		return classify("set caller", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return classify("commit", tx.Commit())
}

// classify turns driver errors into the service error taxonomy. Domain
// sentinels pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInsufficientPrivilege:
			return auth.ErrForbidden
		case codeSerializationFailure, codeDeadlockDetected:
			return checkout.ErrConflict
		}
	}
	return remote.Wrap(op, err)
}
