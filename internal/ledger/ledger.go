// Package ledger is the single point of mutation for product quantities. The
// sale coordinator, refunds and the manual adjust endpoint all route through
// Adjust, so the non-negative invariant and the audit trail are enforced
// exactly once.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/models"
)

// ErrNegativeQuantity is returned when a caller requests a negative resulting
// quantity. Callers computing a relative subtraction clamp at zero instead.
var ErrNegativeQuantity = errors.New("ledger: resulting quantity must not be negative")

// Repo is the record surface the ledger mutates through. Both store.Store and
// store.Tx satisfy it, so adjustments compose into a larger transaction.
type Repo interface {
	GetProduct(ctx context.Context, id string) (models.Product, error)
	UpdateProduct(ctx context.Context, id string, p models.Product) (models.Product, error)
	AppendAudit(ctx context.Context, e models.AuditEntry) error
}

// Service applies absolute-quantity adjustments.
type Service struct {
	repo   Repo
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs the ledger over its default repo.
func NewService(repo Repo, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, clock: func() time.Time { return time.Now().UTC() }}
}

// Adjust sets the product quantity to newQuantity, stamps LastModified and
// records a STOCK_ADJUSTMENT audit entry attributing the change to cause.
func (s *Service) Adjust(ctx context.Context, productID string, newQuantity int, cause string) (models.Product, error) {
	return s.AdjustWith(ctx, s.repo, productID, newQuantity, cause)
}

// AdjustWith runs the same adjustment against an explicit repo, used by the
// sale coordinator to fold deductions into its transaction.
func (s *Service) AdjustWith(ctx context.Context, repo Repo, productID string, newQuantity int, cause string) (models.Product, error) {
	if newQuantity < 0 {
		return models.Product{}, ErrNegativeQuantity
	}
	product, err := repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}
	original := product.Quantity
	product.Quantity = newQuantity
	product.LastModified = s.clock()
	updated, err := repo.UpdateProduct(ctx, productID, product)
	if err != nil {
		return models.Product{}, err
	}
	entry := audit.NewEntry(models.AuditActionStockAdjustment, models.AuditEntityProduct, productID, map[string]any{
		"originalQuantity": original,
		"newQuantity":      newQuantity,
		"difference":       newQuantity - original,
		"cause":            cause,
		"productName":      product.Name,
	})
	if err := repo.AppendAudit(ctx, entry); err != nil {
		s.logger.Warn("stock adjustment audit failed", slog.String("product_id", productID), slog.Any("error", err))
	}
	return updated, nil
}

// AdjustBy applies a relative correction. Negative deltas that would take
// the quantity below zero clamp at zero instead of failing, the policy for
// manual shrinkage and damage write-offs.
func (s *Service) AdjustBy(ctx context.Context, productID string, delta int, cause string) (models.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return models.Product{}, err
	}
	return s.Adjust(ctx, productID, ClampSubtract(product.Quantity, -delta), cause)
}

// ClampSubtract computes current−delta clamped at zero, the documented policy
// for manual corrections that would otherwise go below zero.
func ClampSubtract(current, delta int) int {
	next := current - delta
	if next < 0 {
		return 0
	}
	return next
}
