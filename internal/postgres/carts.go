package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/cart"
	"github.com/imrishuroy/go-storefront/internal/catalog"
)

type cartLineRow struct {
	LineID    string    `db:"line_id"`
	OwnerID   string    `db:"owner_id"`
	ItemID    string    `db:"item_id"`
	Variant   string    `db:"variant"`
	Quantity  int       `db:"quantity"`
	CreatedAt time.Time `db:"created_at"`
}

func (r cartLineRow) toLine() cart.Line {
	return cart.Line{
		ID:        r.LineID,
		OwnerID:   r.OwnerID,
		ItemID:    r.ItemID,
		Variant:   r.Variant,
		Quantity:  r.Quantity,
		CreatedAt: r.CreatedAt,
	}
}

const cartLineColumns = `line_id, owner_id, item_id, variant, quantity, created_at`

// CartRepo implements cart.Repository. The cart_lines_owner policy confines
// every statement to the caller's rows.
type CartRepo struct {
	db *DB
}

// NewCartRepo creates a CartRepo on db.
func NewCartRepo(db *DB) *CartRepo {
	return &CartRepo{db: db}
}

var _ cart.Repository = (*CartRepo)(nil)

func (r *CartRepo) List(ctx context.Context, caller auth.Caller) ([]cart.Line, error) {
	var rows []cartLineRow
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		return classify("list cart", tx.SelectContext(ctx, &rows,
			`SELECT `+cartLineColumns+` FROM cart_lines ORDER BY created_at, line_id`))
	})
	if err != nil {
		return nil, err
	}
	out := make([]cart.Line, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toLine())
	}
	return out, nil
}

func (r *CartRepo) Get(ctx context.Context, caller auth.Caller, lineID string) (*cart.Line, error) {
	var row cartLineRow
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, `SELECT `+cartLineColumns+` FROM cart_lines WHERE line_id = $1`, lineID)
		if errors.Is(err, sql.ErrNoRows) {
			return cart.ErrLineNotFound
		}
		return classify("get cart line", err)
	})
	if err != nil {
		return nil, err
	}
	l := row.toLine()
	return &l, nil
}

// Increment upserts the line. The conflict branch only fires below max, so a
// full line yields no row.
func (r *CartRepo) Increment(ctx context.Context, caller auth.Caller, itemID, variant string, max int) (*cart.Line, error) {
	var row cartLineRow
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &row, `
			INSERT INTO cart_lines AS c (owner_id, item_id, variant, quantity)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (owner_id, item_id, variant)
			DO UPDATE SET quantity = c.quantity + 1, updated_at = now()
			     WHERE c.quantity < $4
			RETURNING `+cartLineColumns, caller.ID, itemID, variant, max)
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ErrStockExhausted
		}
		return classify("increment cart line", err)
	})
	if err != nil {
		return nil, err
	}
	l := row.toLine()
	return &l, nil
}

func (r *CartRepo) SetQuantity(ctx context.Context, caller auth.Caller, lineID string, qty int) error {
	return r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cart_lines SET quantity = $2, updated_at = now() WHERE line_id = $1`, lineID, qty)
		if err != nil {
			return classify("set cart line quantity", err)
		}
		return expectOne(res, cart.ErrLineNotFound)
	})
}

func (r *CartRepo) Remove(ctx context.Context, caller auth.Caller, lineID string) error {
	return r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE line_id = $1`, lineID)
		if err != nil {
			return classify("delete cart line", err)
		}
		return expectOne(res, cart.ErrLineNotFound)
	})
}

func (r *CartRepo) Clear(ctx context.Context, caller auth.Caller) error {
	return r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM cart_lines`)
		return classify("clear cart", err)
	})
}
