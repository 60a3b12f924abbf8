package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/imrishuroy/go-storefront/internal/auth"
)

// IdempotencyRepo finds orders committed under a caller's idempotency key.
type IdempotencyRepo struct {
	db *DB
}

// NewIdempotencyRepo creates an IdempotencyRepo on db.
func NewIdempotencyRepo(db *DB) *IdempotencyRepo {
	return &IdempotencyRepo{db: db}
}

func (r *IdempotencyRepo) Lookup(ctx context.Context, caller auth.Caller, key string) (string, bool, error) {
	var orderID string
	found := false
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &orderID,
			`SELECT order_id FROM idempotency_keys WHERE key = $1 AND expires_at > now()`, key)
		if isNoRows(err) {
			return nil
		}
		if err != nil {
			return classify("get idempotency key", err)
		}
		found = true
		return nil
	})
	return orderID, found, err
}
