package cart

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidVariant  = errors.New("variant is not offered for this item")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Line is one (item, variant, quantity) entry of a cart. A cart holds at most
// one line per (owner, item, variant).
type Line struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	ItemID    string    `json:"item_id"`
	Variant   string    `json:"variant"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// LineView is a cart line joined with the item's current catalog data.
type LineView struct {
	Line
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Stock     int             `json:"stock"`
	// Available is false when the item is missing or deactivated; checkout
	// rejects such carts.
	Available bool            `json:"available"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Cart is the derived view of an owner's lines. Total is never stored.
type Cart struct {
	OwnerID string          `json:"owner_id"`
	Lines   []LineView      `json:"lines"`
	Total   decimal.Decimal `json:"total"`
}

// Total sums unit price times quantity over the lines.
func Total(lines []LineView) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// LineID is the deterministic line identifier for an (item, variant) pair
// within one owner's cart.
func LineID(itemID, variant string) string {
	return itemID + "#" + variant
}
