package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/checkout"
)

// Ledger implements checkout.Ledger as one transaction under the caller's
// identity. Stock is lowered only through decrement_stock.
type Ledger struct {
	db  *DB
	ttl time.Duration
}

// NewLedger creates a Ledger whose idempotency keys live for idempotencyTTL.
func NewLedger(db *DB, idempotencyTTL time.Duration) *Ledger {
	return &Ledger{db: db, ttl: idempotencyTTL}
}

var _ checkout.Ledger = (*Ledger)(nil)

func (l *Ledger) Commit(ctx context.Context, caller auth.Caller, p checkout.Plan) error {
	return l.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		o := p.Order
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, owner_id, total_amount, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, o.OwnerID, o.Total, string(o.Status), o.CreatedAt, o.UpdatedAt); err != nil {
			return classify("insert order", err)
		}

		if p.IdempotencyKey != "" {
			if err := l.claimKey(ctx, tx, caller, p); err != nil {
				return err
			}
		}

		for i, line := range o.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, line_no, item_id, variant, quantity, unit_price, name, image_url)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				o.ID, i+1, line.ItemID, line.Variant, line.Quantity, line.UnitPrice, line.Name, line.ImageURL); err != nil {
				return classify("insert order line", err)
			}
		}

		for _, d := range p.StockDemand() {
			if err := decrement(ctx, tx, d); err != nil {
				return err
			}
		}

		for _, line := range p.CartLines {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM cart_lines WHERE line_id = $1 AND quantity = $2`, line.ID, line.Quantity)
			if err != nil {
				return classify("delete cart line", err)
			}
			if err := expectOne(res, checkout.ErrCartChanged); err != nil {
				return err
			}
		}
		return nil
	})
}

// claimKey records the key. A live record from another commit leaves the
// insert without effect; an expired one is taken over.
func (l *Ledger) claimKey(ctx context.Context, tx *sqlx.Tx, caller auth.Caller, p checkout.Plan) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys AS k (owner_id, key, order_id, created_at, expires_at)
		VALUES ($1, $2, $3, now(), $4)
		ON CONFLICT (owner_id, key) DO UPDATE
		   SET order_id = EXCLUDED.order_id, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		 WHERE k.expires_at <= now()`,
		caller.ID, p.IdempotencyKey, p.Order.ID, time.Now().UTC().Add(l.ttl))
	if err != nil {
		return classify("claim idempotency key", err)
	}
	return expectOne(res, checkout.ErrKeyConflict)
}

func decrement(ctx context.Context, tx *sqlx.Tx, d checkout.Demand) error {
	var remaining sql.NullInt64
	if err := tx.GetContext(ctx, &remaining, `SELECT decrement_stock($1, $2)`, d.ItemID, d.Quantity); err != nil {
		return classify("decrement stock", err)
	}
	if remaining.Valid {
		return nil
	}
	var active bool
	err := tx.GetContext(ctx, &active, `SELECT is_active FROM items WHERE id = $1`, d.ItemID)
	if isNoRows(err) || (err == nil && !active) {
		return errors.Wrapf(catalog.ErrItemUnavailable, "item %s", d.ItemID)
	}
	if err != nil {
		return classify("read item", err)
	}
	return &checkout.StockError{ItemID: d.ItemID}
}
