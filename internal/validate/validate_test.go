package validate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(n int) *int {
	return &n
}

func TestProductValid(t *testing.T) {
	res := Product(ProductInput{
		Name:         "Widget",
		SKU:          "WID-001",
		CostPrice:    decPtr("2.50"),
		SellingPrice: decPtr("4.00"),
		Quantity:     intPtr(10),
	})
	require.True(t, res.Valid)
	require.Empty(t, res.Errors)
}

func TestProductMissingFields(t *testing.T) {
	res := Product(ProductInput{})
	require.False(t, res.Valid)
	require.Equal(t, "is required", res.Errors["name"])
	require.Equal(t, "is required", res.Errors["sku"])
	require.Equal(t, "is required", res.Errors["costPrice"])
	require.Equal(t, "is required", res.Errors["sellingPrice"])
}

func TestProductNegativePrices(t *testing.T) {
	res := Product(ProductInput{
		Name:         "Widget",
		SKU:          "WID-001",
		CostPrice:    decPtr("-1"),
		SellingPrice: decPtr("-2"),
		Quantity:     intPtr(-3),
	})
	require.False(t, res.Valid)
	require.Equal(t, "must be zero or greater", res.Errors["costPrice"])
	require.Equal(t, "must be zero or greater", res.Errors["sellingPrice"])
	require.Equal(t, "must be zero or greater", res.Errors["quantity"])
}

func TestProductSKUTooLong(t *testing.T) {
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'A'
	}
	res := Product(ProductInput{
		Name:         "Widget",
		SKU:          string(long),
		CostPrice:    decPtr("1"),
		SellingPrice: decPtr("2"),
	})
	require.False(t, res.Valid)
	require.Equal(t, "must be at most 50 characters", res.Errors["sku"])
}

func TestProductZeroPricesAllowed(t *testing.T) {
	res := Product(ProductInput{
		Name:         "Freebie",
		SKU:          "FREE-1",
		CostPrice:    decPtr("0"),
		SellingPrice: decPtr("0"),
	})
	require.True(t, res.Valid)
}

func TestSaleValid(t *testing.T) {
	res := Sale(SaleInput{
		Items: []SaleItemInput{
			{ProductID: "prd_1", Quantity: 2, Price: decPtr("4.00")},
		},
		Total:         decPtr("8.00"),
		PaymentMethod: "cash",
	})
	require.True(t, res.Valid)
}

func TestSaleEmptyItems(t *testing.T) {
	res := Sale(SaleInput{
		Items:         []SaleItemInput{},
		Total:         decPtr("1"),
		PaymentMethod: "cash",
	})
	require.False(t, res.Valid)
	require.Contains(t, res.Errors, "items")
}

func TestSaleItemRules(t *testing.T) {
	res := Sale(SaleInput{
		Items: []SaleItemInput{
			{ProductID: "", Quantity: 0},
		},
		Total:         decPtr("1"),
		PaymentMethod: "cash",
	})
	require.False(t, res.Valid)
	require.Equal(t, "is required", res.Errors["items[0].productId"])
	require.Contains(t, res.Errors, "items[0].quantity")
	require.Equal(t, "is required", res.Errors["items[0].price"])
}

func TestSaleBadPaymentMethod(t *testing.T) {
	res := Sale(SaleInput{
		Items: []SaleItemInput{
			{ProductID: "prd_1", Quantity: 1, Price: decPtr("1")},
		},
		Total:         decPtr("1"),
		PaymentMethod: "bitcoin",
	})
	require.False(t, res.Valid)
	require.Equal(t, "must be one of cash, card, transfer, pos", res.Errors["paymentMethod"])
}

func TestSaleTotalRules(t *testing.T) {
	res := Sale(SaleInput{
		Items: []SaleItemInput{
			{ProductID: "prd_1", Quantity: 1, Price: decPtr("1")},
		},
		Total:         decPtr("0"),
		PaymentMethod: "card",
	})
	require.False(t, res.Valid)
	require.Equal(t, "must be greater than zero", res.Errors["total"])

	res = Sale(SaleInput{
		Items: []SaleItemInput{
			{ProductID: "prd_1", Quantity: 1, Price: decPtr("1")},
		},
		PaymentMethod: "card",
	})
	require.False(t, res.Valid)
	require.Equal(t, "is required", res.Errors["total"])
}

func TestStockAdjustment(t *testing.T) {
	res := StockAdjustment(StockAdjustmentInput{ProductID: "prd_1", Quantity: intPtr(7), Reason: "recount"})
	require.True(t, res.Valid)

	res = StockAdjustment(StockAdjustmentInput{ProductID: "prd_1", Delta: intPtr(-3), Reason: "damage"})
	require.True(t, res.Valid)

	res = StockAdjustment(StockAdjustmentInput{ProductID: "prd_1", Reason: "  "})
	require.False(t, res.Valid)
	require.Equal(t, "is required", res.Errors["quantity"])
	require.Equal(t, "is required", res.Errors["reason"])

	res = StockAdjustment(StockAdjustmentInput{
		ProductID: "prd_1", Quantity: intPtr(7), Delta: intPtr(-3), Reason: "recount",
	})
	require.False(t, res.Valid)
	require.Equal(t, "cannot be combined with quantity", res.Errors["delta"])
}
