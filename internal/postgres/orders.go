package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

type orderRow struct {
	ID          string          `db:"id"`
	OwnerID     string          `db:"owner_id"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

type orderLineRow struct {
	OrderID   string          `db:"order_id"`
	LineNo    int             `db:"line_no"`
	ItemID    string          `db:"item_id"`
	Variant   string          `db:"variant"`
	Quantity  int             `db:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price"`
	Name      string          `db:"name"`
	ImageURL  string          `db:"image_url"`
}

// OrderRepo implements orders.Repository under the orders policies and the
// back-office status update outside of them.
type OrderRepo struct {
	db *DB
}

// NewOrderRepo creates an OrderRepo on db.
func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{db: db}
}

var (
	_ orders.Repository    = (*OrderRepo)(nil)
	_ orders.StatusUpdater = (*OrderRepo)(nil)
)

func (r *OrderRepo) Get(ctx context.Context, caller auth.Caller, orderID string) (*orders.Order, error) {
	var out []orders.Order
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		var rows []orderRow
		if err := tx.SelectContext(ctx, &rows,
			`SELECT id, owner_id, total_amount, status, created_at, updated_at FROM orders WHERE id = $1`, orderID); err != nil {
			return classify("get order", err)
		}
		var err error
		out, err = withLines(ctx, tx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, orders.ErrOrderNotFound
	}
	return &out[0], nil
}

func (r *OrderRepo) ListByOwner(ctx context.Context, caller auth.Caller) ([]orders.Order, error) {
	var out []orders.Order
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		var rows []orderRow
		if err := tx.SelectContext(ctx, &rows, `
			SELECT id, owner_id, total_amount, status, created_at, updated_at
			  FROM orders
			 ORDER BY created_at DESC, id ASC`); err != nil {
			return classify("list orders", err)
		}
		var err error
		out, err = withLines(ctx, tx, rows)
		return err
	})
	return out, err
}

// withLines loads the lines of every order in one query.
func withLines(ctx context.Context, tx *sqlx.Tx, rows []orderRow) ([]orders.Order, error) {
	out := make([]orders.Order, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	query, args, err := sqlx.In(`
		SELECT order_id, line_no, item_id, variant, quantity, unit_price, name, image_url
		  FROM order_lines WHERE order_id IN (?) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build order lines query")
	}
	var lines []orderLineRow
	if err := tx.SelectContext(ctx, &lines, tx.Rebind(query), args...); err != nil {
		return nil, classify("list order lines", err)
	}
	byOrder := map[string][]orders.Line{}
	for _, l := range lines {
		byOrder[l.OrderID] = append(byOrder[l.OrderID], orders.Line{
			ItemID:    l.ItemID,
			Variant:   l.Variant,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Name:      l.Name,
			ImageURL:  l.ImageURL,
		})
	}
	for _, r := range rows {
		lines := byOrder[r.ID]
		if lines == nil {
			lines = []orders.Line{}
		}
		out = append(out, orders.Order{
			ID:        r.ID,
			OwnerID:   r.OwnerID,
			Total:     r.TotalAmount,
			Status:    orders.Status(r.Status),
			Lines:     lines,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

// UpdateStatus runs as the connecting role, outside the customer policies.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID string, expected, next orders.Status) error {
	res, err := r.db.x.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		orderID, string(expected), string(next))
	if err != nil {
		return classify("update order status", err)
	}
	return expectOne(res, orders.ErrStatusMismatch)
}

func isNoRows(err error) bool { return errors.Is(err, sql.ErrNoRows) }
