package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound    = errors.New("item not found")
	ErrItemUnavailable = errors.New("item is not available")
	ErrStockExhausted  = errors.New("not enough stock")
	ErrInvalidItem     = errors.New("invalid item")
)

// Item is a catalog entry. Price is the current unit price; orders capture
// their own copy at checkout.
type Item struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	Brand         string          `json:"brand"`
	Variants      []string        `json:"variants"`
	StockQuantity int             `json:"stock_quantity"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// HasVariant reports whether variant is selectable for the item. Items
// without variants accept only the empty variant.
func (it Item) HasVariant(variant string) bool {
	if len(it.Variants) == 0 {
		return variant == ""
	}
	for _, v := range it.Variants {
		if v == variant {
			return true
		}
	}
	return false
}

// Validate checks the fields every stored item must satisfy.
func (it Item) Validate() error {
	if strings.TrimSpace(it.Name) == "" {
		return errors.Wrap(ErrInvalidItem, "name is required")
	}
	if !it.Price.IsPositive() {
		return errors.Wrap(ErrInvalidItem, "price must be positive")
	}
	if it.StockQuantity < 0 {
		return errors.Wrap(ErrInvalidItem, "stock cannot be negative")
	}
	for _, v := range it.Variants {
		// variants are part of cart line ids, which travel as one URL path segment
		if v == "" || strings.ContainsAny(v, variantReserved) {
			return errors.Wrapf(ErrInvalidItem, "variant %q must be non-empty without %q", v, variantReserved)
		}
	}
	return nil
}

// variantReserved are the characters a variant may not contain.
const variantReserved = "/#"

// Patch holds optional item changes. Stock changes go through Restock.
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageURL    *string
	Brand       *string
	Variants    *[]string
}

// Apply returns a copy of it with the patch applied.
func (p Patch) Apply(it Item) Item {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Price != nil {
		it.Price = *p.Price
	}
	if p.ImageURL != nil {
		it.ImageURL = *p.ImageURL
	}
	if p.Brand != nil {
		it.Brand = *p.Brand
	}
	if p.Variants != nil {
		it.Variants = append([]string(nil), (*p.Variants)...)
	}
	return it
}

// Bracket is a price range selectable in catalog filters.
type Bracket string

const (
	BracketAny      Bracket = ""
	BracketUnder100 Bracket = "under-100"
	Bracket100To200 Bracket = "100-200"
	BracketOver200  Bracket = "over-200"
)

var (
	hundred    = decimal.NewFromInt(100)
	twoHundred = decimal.NewFromInt(200)
)

// ParseBracket accepts the query-string form of a bracket.
func ParseBracket(s string) (Bracket, error) {
	switch b := Bracket(strings.TrimSpace(s)); b {
	case BracketAny, BracketUnder100, Bracket100To200, BracketOver200:
		return b, nil
	default:
		return BracketAny, errors.Errorf("unknown price bracket %q", s)
	}
}

// Contains reports whether price falls in the bracket. 100 and 200 belong to
// the middle bracket.
func (b Bracket) Contains(price decimal.Decimal) bool {
	switch b {
	case BracketUnder100:
		return price.LessThan(hundred)
	case Bracket100To200:
		return price.GreaterThanOrEqual(hundred) && price.LessThanOrEqual(twoHundred)
	case BracketOver200:
		return price.GreaterThan(twoHundred)
	default:
		return true
	}
}

// Bounds returns the limits used by SQL backends. A nil bound is open.
func (b Bracket) Bounds() (min, max *decimal.Decimal, minInclusive, maxInclusive bool) {
	lo, hi := hundred, twoHundred
	switch b {
	case BracketUnder100:
		return nil, &lo, false, false
	case Bracket100To200:
		return &lo, &hi, true, true
	case BracketOver200:
		return &hi, nil, false, false
	default:
		return nil, nil, false, false
	}
}

// Filter is a conjunction of catalog predicates. Zero values match everything.
type Filter struct {
	Query   string
	Brand   string
	Bracket Bracket
}

// Match evaluates the filter against an item. Inactive items never match.
func (f Filter) Match(it Item) bool {
	if !it.IsActive {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(it.Name), q) && !strings.Contains(strings.ToLower(it.Brand), q) {
			return false
		}
	}
	if f.Brand != "" && !strings.EqualFold(it.Brand, f.Brand) {
		return false
	}
	return f.Bracket.Contains(it.Price)
}

// Apply filters items and orders them newest first, ties broken by id.
func (f Filter) Apply(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	SortNewestFirst(out)
	return out
}

// SortNewestFirst sorts by creation time descending, then id ascending.
func SortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}
