// Package analytics derives dashboard figures from the product and sale
// collections. Everything here is read-only and recomputed on demand; there
// are no persisted materialized views.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/stocklane/stocklane/internal/models"
)

// Reader is the read surface the aggregator depends on.
type Reader interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListSales(ctx context.Context) ([]models.Sale, error)
}

// ProductSummary is an aggregated line for top-selling and trending lists.
type ProductSummary struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitsSold int             `json:"unitsSold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// ProfitPoint is one calendar day of the revenue/cost/profit series.
type ProfitPoint struct {
	Day     string          `json:"day"`
	Revenue decimal.Decimal `json:"revenue"`
	Cost    decimal.Decimal `json:"cost"`
	Profit  decimal.Decimal `json:"profit"`
}

// Service computes the derivations. Concurrent identical requests collapse
// into one computation via singleflight.
type Service struct {
	reader Reader
	group  singleflight.Group
	clock  func() time.Time
}

// NewService builds Service.
func NewService(reader Reader) *Service {
	return &Service{reader: reader, clock: func() time.Time { return time.Now().UTC() }}
}

// LowStockProducts returns products with 0 < quantity ≤ threshold. Zero
// quantity is "out of stock", a disjoint category.
func (s *Service) LowStockProducts(ctx context.Context) ([]models.Product, error) {
	v, err, _ := s.group.Do("low-stock", func() (any, error) {
		products, err := s.reader.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		low := make([]models.Product, 0)
		for _, p := range products {
			if p.Quantity > 0 && p.Quantity <= p.LowStockThreshold {
				low = append(low, p)
			}
		}
		return low, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Product), nil
}

// OutOfStockProducts returns products with zero quantity.
func (s *Service) OutOfStockProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.reader.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Product, 0)
	for _, p := range products {
		if p.Quantity == 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// TopSellingProducts aggregates completed sales per product, ordered by units
// sold descending, limited to limit entries.
func (s *Service) TopSellingProducts(ctx context.Context, limit int) ([]ProductSummary, error) {
	key := fmt.Sprintf("top-selling:%d", limit)
	v, err, _ := s.group.Do(key, func() (any, error) {
		sales, err := s.reader.ListSales(ctx)
		if err != nil {
			return nil, err
		}
		summaries := aggregate(sales, func(models.Sale) bool { return true })
		if limit > 0 && len(summaries) > limit {
			summaries = summaries[:limit]
		}
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ProductSummary), nil
}

// TrendingProducts restricts the aggregation to the trailing windowDays and
// keeps products that moved at least minUnits.
func (s *Service) TrendingProducts(ctx context.Context, windowDays, minUnits int) ([]ProductSummary, error) {
	key := fmt.Sprintf("trending:%d:%d", windowDays, minUnits)
	v, err, _ := s.group.Do(key, func() (any, error) {
		sales, err := s.reader.ListSales(ctx)
		if err != nil {
			return nil, err
		}
		cutoff := s.clock().AddDate(0, 0, -windowDays)
		summaries := aggregate(sales, func(sale models.Sale) bool {
			return !sale.CreatedAt.Before(cutoff)
		})
		trending := make([]ProductSummary, 0, len(summaries))
		for _, sum := range summaries {
			if sum.UnitsSold >= minUnits {
				trending = append(trending, sum)
			}
		}
		return trending, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ProductSummary), nil
}

// ProfitSeries groups the given sales by calendar day, summing revenue
// (sale totals) and cost (line item cost×quantity). Profit is the difference.
func (s *Service) ProfitSeries(sales []models.Sale) []ProfitPoint {
	byDay := make(map[string]*ProfitPoint)
	for _, sale := range sales {
		day := sale.CreatedAt.UTC().Format("2006-01-02")
		point, ok := byDay[day]
		if !ok {
			point = &ProfitPoint{Day: day, Revenue: decimal.Zero, Cost: decimal.Zero}
			byDay[day] = point
		}
		point.Revenue = point.Revenue.Add(sale.Total)
		for _, li := range sale.Items {
			point.Cost = point.Cost.Add(li.LineCost())
		}
	}
	series := make([]ProfitPoint, 0, len(byDay))
	for _, point := range byDay {
		point.Profit = point.Revenue.Sub(point.Cost)
		series = append(series, *point)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Day < series[j].Day })
	return series
}

// ProfitSeriesAll loads every sale and computes the series.
func (s *Service) ProfitSeriesAll(ctx context.Context) ([]ProfitPoint, error) {
	sales, err := s.reader.ListSales(ctx)
	if err != nil {
		return nil, err
	}
	return s.ProfitSeries(sales), nil
}

// aggregate folds completed sales matching the filter into per-product
// summaries, descending by units sold.
func aggregate(sales []models.Sale, match func(models.Sale) bool) []ProductSummary {
	byProduct := make(map[string]*ProductSummary)
	for _, sale := range sales {
		if sale.Status != models.SaleStatusCompleted || !match(sale) {
			continue
		}
		for _, li := range sale.Items {
			sum, ok := byProduct[li.ProductID]
			if !ok {
				sum = &ProductSummary{ProductID: li.ProductID, Name: li.Name, SKU: li.SKU, Revenue: decimal.Zero}
				byProduct[li.ProductID] = sum
			}
			sum.UnitsSold += li.Quantity
			sum.Revenue = sum.Revenue.Add(li.LineTotal())
		}
	}
	summaries := make([]ProductSummary, 0, len(byProduct))
	for _, sum := range byProduct {
		summaries = append(summaries, *sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UnitsSold != summaries[j].UnitsSold {
			return summaries[i].UnitsSold > summaries[j].UnitsSold
		}
		return summaries[i].ProductID < summaries[j].ProductID
	})
	return summaries
}
