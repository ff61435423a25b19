package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/models"
)

type memoryReader struct {
	products []models.Product
	sales    []models.Sale
}

func (r *memoryReader) ListProducts(ctx context.Context) ([]models.Product, error) {
	return r.products, nil
}

func (r *memoryReader) ListSales(ctx context.Context) ([]models.Sale, error) {
	return r.sales, nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stocked(id string, qty, threshold int) models.Product {
	return models.Product{ID: id, Name: "P" + id, SKU: "SKU-" + id, Quantity: qty, LowStockThreshold: threshold}
}

func completedSale(createdAt time.Time, items ...models.SaleLineItem) models.Sale {
	sale := models.Sale{
		Items:     items,
		Status:    models.SaleStatusCompleted,
		CreatedAt: createdAt,
	}
	sale.Total = sale.ItemsTotal()
	return sale
}

func line(productID string, qty int, price, cost string) models.SaleLineItem {
	return models.SaleLineItem{
		ProductID: productID,
		Name:      "P" + productID,
		SKU:       "SKU-" + productID,
		Quantity:  qty,
		Price:     dec(price),
		CostPrice: dec(cost),
	}
}

func TestLowStockBoundaries(t *testing.T) {
	svc := NewService(&memoryReader{products: []models.Product{
		stocked("zero", 0, 5),
		stocked("at", 5, 5),
		stocked("below", 2, 5),
		stocked("above", 6, 5),
	}})

	low, err := svc.LowStockProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 2)
	ids := []string{low[0].ID, low[1].ID}
	require.ElementsMatch(t, []string{"at", "below"}, ids)

	out, err := svc.OutOfStockProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "zero", out[0].ID)
}

func TestTopSellingOrdersAndLimits(t *testing.T) {
	now := time.Now().UTC()
	refund := completedSale(now, line("c", 50, "1.00", "0.50"))
	refund.Status = models.SaleStatusRefunded
	svc := NewService(&memoryReader{sales: []models.Sale{
		completedSale(now, line("a", 3, "2.00", "1.00")),
		completedSale(now, line("b", 7, "1.00", "0.50"), line("a", 2, "2.00", "1.00")),
		refund,
	}})

	top, err := svc.TopSellingProducts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "b", top[0].ProductID)
	require.Equal(t, 7, top[0].UnitsSold)
	require.True(t, top[0].Revenue.Equal(dec("7.00")))
	require.Equal(t, "a", top[1].ProductID)
	require.Equal(t, 5, top[1].UnitsSold)

	limited, err := svc.TopSellingProducts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "b", limited[0].ProductID)
}

func TestTrendingWindowAndFloor(t *testing.T) {
	now := time.Now().UTC()
	svc := NewService(&memoryReader{sales: []models.Sale{
		completedSale(now.AddDate(0, 0, -2), line("recent", 6, "1.00", "0.50")),
		completedSale(now.AddDate(0, 0, -2), line("slow", 2, "1.00", "0.50")),
		completedSale(now.AddDate(0, 0, -30), line("stale", 40, "1.00", "0.50")),
	}})

	trending, err := svc.TrendingProducts(context.Background(), 7, 5)
	require.NoError(t, err)
	require.Len(t, trending, 1)
	require.Equal(t, "recent", trending[0].ProductID)
}

func TestProfitSeriesGroupsByDay(t *testing.T) {
	day1 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	day1Later := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	svc := NewService(&memoryReader{})

	series := svc.ProfitSeries([]models.Sale{
		completedSale(day1, line("a", 2, "5.00", "2.00")),
		completedSale(day1Later, line("a", 1, "5.00", "2.00")),
		completedSale(day2, line("b", 1, "10.00", "6.00")),
	})
	require.Len(t, series, 2)

	require.Equal(t, "2026-05-01", series[0].Day)
	require.True(t, series[0].Revenue.Equal(dec("15.00")))
	require.True(t, series[0].Cost.Equal(dec("6.00")))
	require.True(t, series[0].Profit.Equal(dec("9.00")))

	require.Equal(t, "2026-05-02", series[1].Day)
	require.True(t, series[1].Profit.Equal(dec("4.00")))
}

func TestProfitSeriesEmpty(t *testing.T) {
	svc := NewService(&memoryReader{})
	require.Empty(t, svc.ProfitSeries(nil))
}
