package validation

import "github.com/shopspring/decimal"

// AddCartLineRequest is the payload for POST /cart/lines
type AddCartLineRequest struct {
	ItemID  string `json:"item_id" validate:"required,max=64"`
	Variant string `json:"variant" validate:"max=64,excludesall=/#"` // empty for items without variants
}

// SetQuantityRequest is the payload for PUT /cart/lines/:lineID. The lower
// bound is enforced by the cart so it can report InvalidQuantity.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// CreateItemRequest is the payload for POST /admin/items
type CreateItemRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Description   string          `json:"description" validate:"max=4000"`
	Price         decimal.Decimal `json:"price" validate:"gt=0"` // at most two decimal places
	ImageURL      string          `json:"image_url" validate:"omitempty,url"`
	Brand         string          `json:"brand" validate:"max=100"`
	Variants      []string        `json:"variants" validate:"omitempty,unique,dive,required,max=64,excludesall=/#"`
	StockQuantity int             `json:"stock_quantity" validate:"min=0"`
}

// UpdateItemRequest is the payload for PATCH /admin/items/:id. Absent fields
// are left unchanged.
type UpdateItemRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=4000"`
	Price       *decimal.Decimal `json:"price" validate:"omitempty,gt=0"`
	ImageURL    *string          `json:"image_url" validate:"omitempty,url"`
	Brand       *string          `json:"brand" validate:"omitempty,max=100"`
	Variants    *[]string        `json:"variants" validate:"omitempty,unique,dive,required,max=64,excludesall=/#"`
}

// RestockRequest is the payload for POST /admin/items/:id/restock
type RestockRequest struct {
	Delta int `json:"delta" validate:"required,min=1"`
}

// CatalogQuery is the query string of GET /items
type CatalogQuery struct {
	Q     string `form:"q" validate:"max=100"`
	Brand string `form:"brand" validate:"max=100"`
	Price string `form:"price" validate:"omitempty,oneof=under-100 100-200 over-200"`
}
