package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/catalog"
)

// stringList stores a string slice in a JSONB column.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *stringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("stringList: unsupported source %T", src)
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

type itemRow struct {
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	Description   string          `db:"description"`
	Price         decimal.Decimal `db:"price"`
	ImageURL      string          `db:"image_url"`
	Brand         string          `db:"brand"`
	Variants      stringList      `db:"variants"`
	StockQuantity int             `db:"stock_quantity"`
	IsActive      bool            `db:"is_active"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r itemRow) toItem() catalog.Item {
	return catalog.Item{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		ImageURL:      r.ImageURL,
		Brand:         r.Brand,
		Variants:      []string(r.Variants),
		StockQuantity: r.StockQuantity,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func fromItem(it catalog.Item) itemRow {
	return itemRow{
		ID:            it.ID,
		Name:          it.Name,
		Description:   it.Description,
		Price:         it.Price,
		ImageURL:      it.ImageURL,
		Brand:         it.Brand,
		Variants:      stringList(it.Variants),
		StockQuantity: it.StockQuantity,
		IsActive:      it.IsActive,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
}

const itemColumns = `id, name, description, price, image_url, brand, variants, stock_quantity, is_active, created_at, updated_at`

// CatalogRepo implements catalog.Repository. Reads are public; writes are
// allowed by the items policies only for admins.
type CatalogRepo struct {
	db *DB
}

// NewCatalogRepo creates a CatalogRepo on db.
func NewCatalogRepo(db *DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

var _ catalog.Repository = (*CatalogRepo)(nil)

func (r *CatalogRepo) Get(ctx context.Context, id string) (*catalog.Item, error) {
	var row itemRow
	err := r.db.x.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrItemNotFound
	}
	if err != nil {
		return nil, classify("get item", err)
	}
	it := row.toItem()
	return &it, nil
}

func (r *CatalogRepo) GetMany(ctx context.Context, ids []string) (map[string]catalog.Item, error) {
	out := map[string]catalog.Item{}
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+itemColumns+` FROM items WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build item batch query")
	}
	var rows []itemRow
	if err := r.db.x.SelectContext(ctx, &rows, r.db.x.Rebind(query), args...); err != nil {
		return nil, classify("get items", err)
	}
	for _, row := range rows {
		out[row.ID] = row.toItem()
	}
	return out, nil
}

// listQuery builds the filtered catalog query. Text matching is a
// case-insensitive substring on name or brand.
func listQuery(f catalog.Filter) (string, []interface{}) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE is_active`
	var conditions []string
	var args []interface{}
	argIndex := 1

	if q := strings.TrimSpace(f.Query); q != "" {
		conditions = append(conditions, fmt.Sprintf("(strpos(lower(name), lower($%d)) > 0 OR strpos(lower(brand), lower($%d)) > 0)", argIndex, argIndex))
		args = append(args, q)
		argIndex++
	}
	if b := strings.TrimSpace(f.Brand); b != "" {
		conditions = append(conditions, fmt.Sprintf("lower(brand) = lower($%d)", argIndex))
		args = append(args, b)
		argIndex++
	}
	lo, hi, loInclusive, hiInclusive := f.Bracket.Bounds()
	if lo != nil {
		op := ">"
		if loInclusive {
			op = ">="
		}
		conditions = append(conditions, fmt.Sprintf("price %s $%d", op, argIndex))
		args = append(args, lo.String())
		argIndex++
	}
	if hi != nil {
		op := "<"
		if hiInclusive {
			op = "<="
		}
		conditions = append(conditions, fmt.Sprintf("price %s $%d", op, argIndex))
		args = append(args, hi.String())
	}

	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	return query, args
}

func (r *CatalogRepo) ListActive(ctx context.Context, f catalog.Filter) ([]catalog.Item, error) {
	query, args := listQuery(f)
	var rows []itemRow
	if err := r.db.x.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("list items", err)
	}
	out := make([]catalog.Item, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toItem())
	}
	return out, nil
}

func (r *CatalogRepo) Create(ctx context.Context, caller auth.Caller, it catalog.Item) error {
	return r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO items (`+itemColumns+`)
			VALUES (:id, :name, :description, :price, :image_url, :brand, :variants, :stock_quantity, :is_active, :created_at, :updated_at)`,
			fromItem(it))
		return classify("insert item", err)
	})
}

func (r *CatalogRepo) Update(ctx context.Context, caller auth.Caller, it catalog.Item) error {
	return r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE items
			   SET name = :name, description = :description, price = :price, image_url = :image_url,
			       brand = :brand, variants = :variants, updated_at = :updated_at
			 WHERE id = :id`,
			fromItem(it))
		if err != nil {
			return classify("update item", err)
		}
		return expectOne(res, catalog.ErrItemNotFound)
	})
}

func (r *CatalogRepo) Restock(ctx context.Context, caller auth.Caller, id string, delta int) (int, error) {
	var stock int
	err := r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &stock, `
			UPDATE items SET stock_quantity = stock_quantity + $2, updated_at = now()
			 WHERE id = $1
			RETURNING stock_quantity`, id, delta)
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.ErrItemNotFound
		}
		return classify("restock item", err)
	})
	return stock, err
}

func (r *CatalogRepo) SetActive(ctx context.Context, caller auth.Caller, id string, active bool) error {
	return r.db.asCaller(ctx, caller, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE items SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
		if err != nil {
			return classify("set item active", err)
		}
		return expectOne(res, catalog.ErrItemNotFound)
	})
}

// expectOne maps zero affected rows to notFound. Rows hidden by a policy
// count as zero.
func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
