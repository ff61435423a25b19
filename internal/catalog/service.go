// Package catalog owns the product collection: validated CRUD, SKU
// uniqueness and audit entries for every mutation.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/store"
	"github.com/stocklane/stocklane/internal/validate"
)

// Service coordinates product operations.
type Service struct {
	store  store.Store
	audit  *audit.Logger
	logger *slog.Logger
	clock  func() time.Time
}

// NewService builds Service.
func NewService(st store.Store, auditLog *audit.Logger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, audit: auditLog, logger: logger, clock: func() time.Time { return time.Now().UTC() }}
}

// Create validates and inserts a new product. The SKU must be unique across
// all products at the moment of creation.
func (s *Service) Create(ctx context.Context, in validate.ProductInput) (models.Product, error) {
	if res := validate.Product(in); !res.Valid {
		return models.Product{}, &shared.ValidationError{Fields: res.Errors}
	}
	if err := s.checkSKUUnique(ctx, in.SKU, ""); err != nil {
		return models.Product{}, err
	}
	now := s.clock()
	product := models.Product{
		Name:              in.Name,
		SKU:               in.SKU,
		CostPrice:         *in.CostPrice,
		SellingPrice:      *in.SellingPrice,
		LowStockThreshold: models.DefaultLowStockThreshold,
		Category:          in.Category,
		Description:       in.Description,
		ImageURL:          in.ImageURL,
		CreatedAt:         now,
		LastModified:      now,
	}
	if in.Quantity != nil {
		product.Quantity = *in.Quantity
	}
	if in.LowStockThreshold != nil {
		product.LowStockThreshold = *in.LowStockThreshold
	}
	created, err := s.store.InsertProduct(ctx, product)
	if err != nil {
		return models.Product{}, &shared.PersistenceError{Op: "insert product", Err: err}
	}
	s.audit.Log(ctx, models.AuditActionCreate, models.AuditEntityProduct, created.ID, map[string]any{
		"name": created.Name,
		"sku":  created.SKU,
	})
	return created, nil
}

// Update validates and overwrites the mutable fields of an existing product.
// Quantity is untouched here: stock changes go through the ledger.
func (s *Service) Update(ctx context.Context, id string, in validate.ProductInput) (models.Product, error) {
	if res := validate.Product(in); !res.Valid {
		return models.Product{}, &shared.ValidationError{Fields: res.Errors}
	}
	current, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	if err := s.checkSKUUnique(ctx, in.SKU, id); err != nil {
		return models.Product{}, err
	}
	current.Name = in.Name
	current.SKU = in.SKU
	current.CostPrice = *in.CostPrice
	current.SellingPrice = *in.SellingPrice
	current.Category = in.Category
	current.Description = in.Description
	current.ImageURL = in.ImageURL
	if in.LowStockThreshold != nil {
		current.LowStockThreshold = *in.LowStockThreshold
	}
	current.LastModified = s.clock()
	updated, err := s.store.UpdateProduct(ctx, id, current)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return models.Product{}, err
		}
		return models.Product{}, &shared.PersistenceError{Op: "update product", Err: err}
	}
	s.audit.Log(ctx, models.AuditActionUpdate, models.AuditEntityProduct, id, map[string]any{
		"name": updated.Name,
		"sku":  updated.SKU,
	})
	return updated, nil
}

// Delete removes the product outright. Sales keep their denormalized
// name/sku/price snapshots, so historical reports stay accurate.
func (s *Service) Delete(ctx context.Context, id string) (models.Product, error) {
	removed, err := s.store.DeleteProduct(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	s.audit.Log(ctx, models.AuditActionDelete, models.AuditEntityProduct, id, map[string]any{
		"name": removed.Name,
		"sku":  removed.SKU,
	})
	return removed, nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id string) (models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// List returns all products.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) checkSKUUnique(ctx context.Context, sku, selfID string) error {
	existing, err := s.store.GetProductBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return &shared.PersistenceError{Op: "lookup sku", Err: err}
	}
	if existing.ID != selfID {
		return shared.NewValidationError("sku", "is already in use by another product")
	}
	return nil
}
