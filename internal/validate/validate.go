// Package validate implements the pure field-level checks applied before any
// mutation. Results come back as data, never as panics or exceptions; the
// transactional failure paths belong to the sale coordinator.
package validate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Result is the discriminated outcome of a validation pass. Errors maps field
// name to a user-facing message; callers aggregate it into a single error.
type Result struct {
	Valid  bool
	Errors map[string]string
}

func failure(errs map[string]string) Result {
	return Result{Valid: len(errs) == 0, Errors: errs}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ProductInput is a prospective product. Pointer fields distinguish "absent"
// from zero values.
type ProductInput struct {
	Name              string           `json:"name" validate:"required"`
	SKU               string           `json:"sku" validate:"required,max=50"`
	CostPrice         *decimal.Decimal `json:"costPrice"`
	SellingPrice      *decimal.Decimal `json:"sellingPrice"`
	Quantity          *int             `json:"quantity"`
	LowStockThreshold *int             `json:"lowStockThreshold"`
	Category          string           `json:"category"`
	Description       string           `json:"description"`
	ImageURL          string           `json:"image"`
}

// SaleItemInput is one prospective line item.
type SaleItemInput struct {
	ProductID string           `json:"productId" validate:"required"`
	Quantity  int              `json:"quantity" validate:"required,gt=0"`
	Price     *decimal.Decimal `json:"price"`
	CostPrice *decimal.Decimal `json:"costPrice"`
}

// SaleInput is a prospective sale.
type SaleInput struct {
	Items         []SaleItemInput  `json:"items" validate:"required,min=1,dive"`
	Total         *decimal.Decimal `json:"total"`
	PaymentMethod string           `json:"paymentMethod" validate:"required,oneof=cash card transfer pos"`
}

// StockAdjustmentInput is a prospective manual stock adjustment. Quantity
// sets an absolute level; Delta applies a relative correction. Exactly one
// of the two is expected.
type StockAdjustmentInput struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  *int   `json:"quantity"`
	Delta     *int   `json:"delta"`
	Reason    string `json:"reason" validate:"required"`
}

// Product checks a product candidate against the field rules.
func Product(in ProductInput) Result {
	errs := structErrors(in)
	if in.CostPrice == nil {
		errs["costPrice"] = "is required"
	} else if in.CostPrice.IsNegative() {
		errs["costPrice"] = "must be zero or greater"
	}
	if in.SellingPrice == nil {
		errs["sellingPrice"] = "is required"
	} else if in.SellingPrice.IsNegative() {
		errs["sellingPrice"] = "must be zero or greater"
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		errs["quantity"] = "must be zero or greater"
	}
	if in.LowStockThreshold != nil && *in.LowStockThreshold < 0 {
		errs["lowStockThreshold"] = "must be zero or greater"
	}
	return failure(errs)
}

// Sale checks a sale candidate against the field rules. Line-item prices are
// snapshots supplied by the caller and are required, so the total can be
// cross-checked without touching the store.
func Sale(in SaleInput) Result {
	errs := structErrors(in)
	if in.Total == nil {
		errs["total"] = "is required"
	} else if !in.Total.IsPositive() {
		errs["total"] = "must be greater than zero"
	}
	for i, item := range in.Items {
		switch {
		case item.Price == nil:
			errs[fmt.Sprintf("items[%d].price", i)] = "is required"
		case item.Price.IsNegative():
			errs[fmt.Sprintf("items[%d].price", i)] = "must be zero or greater"
		}
		if item.CostPrice != nil && item.CostPrice.IsNegative() {
			errs[fmt.Sprintf("items[%d].costPrice", i)] = "must be zero or greater"
		}
	}
	return failure(errs)
}

// StockAdjustment checks a manual adjustment candidate.
func StockAdjustment(in StockAdjustmentInput) Result {
	errs := structErrors(in)
	switch {
	case in.Quantity == nil && in.Delta == nil:
		errs["quantity"] = "is required"
	case in.Quantity != nil && in.Delta != nil:
		errs["delta"] = "cannot be combined with quantity"
	}
	if strings.TrimSpace(in.Reason) == "" {
		errs["reason"] = "is required"
	}
	return failure(errs)
}

func structErrors(v any) map[string]string {
	errs := make(map[string]string)
	err := validate.Struct(v)
	if err == nil {
		return errs
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["_"] = err.Error()
		return errs
	}
	for _, fe := range fieldErrs {
		errs[fieldPath(fe)] = message(fe)
	}
	return errs
}

// fieldPath strips the root struct name, keeping nested paths like
// "items[0].quantity".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of %s", strings.Join(strings.Fields(fe.Param()), ", "))
	default:
		return "is invalid"
	}
}
