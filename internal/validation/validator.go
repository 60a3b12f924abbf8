package validation

import (
	"reflect"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a configured validator: decimals validate as numbers, and
// request-level rules are registered as struct validations.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	v.RegisterStructValidation(createItemStructValidation, CreateItemRequest{})
	v.RegisterStructValidation(updateItemStructValidation, UpdateItemRequest{})

	return v
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// createItemStructValidation rejects prices with sub-cent precision.
func createItemStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateItemRequest)
	if !centPrecise(req.Price) {
		sl.ReportError(req.Price, "price", "Price", "cents", "")
	}
}

// updateItemStructValidation requires at least one field and cent precision.
func updateItemStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateItemRequest)
	if req.Name == nil && req.Description == nil && req.Price == nil &&
		req.ImageURL == nil && req.Brand == nil && req.Variants == nil {
		sl.ReportError(req, "request", "UpdateItemRequest", "nonempty", "")
	}
	if req.Price != nil && !centPrecise(*req.Price) {
		sl.ReportError(req.Price, "price", "Price", "cents", "")
	}
}

func centPrecise(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}
