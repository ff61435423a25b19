// Package sales holds the sale transaction coordinator: the multi-entity
// mutation that records a sale, deducts stock per line item and writes audit
// entries as one all-or-nothing unit, plus the refund transition.
package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/store"
	"github.com/stocklane/stocklane/internal/validate"
)

// ErrInvalidTransition is returned for any status change other than
// completed→refunded.
var ErrInvalidTransition = errors.New("sales: only completed sales can be refunded")

// CreateSaleRequest is the caller-supplied sale candidate.
type CreateSaleRequest struct {
	Items          []validate.SaleItemInput `json:"items"`
	Total          *decimal.Decimal         `json:"total"`
	PaymentMethod  string                   `json:"paymentMethod"`
	CustomerID     string                   `json:"customerId,omitempty"`
	CustomerName   string                   `json:"customerName,omitempty"`
	Notes          string                   `json:"notes,omitempty"`
	IdempotencyKey string                   `json:"-"`
}

// Service is the transaction coordinator.
type Service struct {
	store       store.Store
	native      store.NativeSaleCreator
	ledger      *ledger.Service
	audit       *audit.Logger
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	clock       func() time.Time
}

// NewService builds the coordinator. When the store binding ships a native
// atomic sale path it is detected here, once; the per-call logic never
// branches on the backend.
func NewService(st store.Store, ledgerSvc *ledger.Service, auditLog *audit.Logger, idem *shared.IdempotencyStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	native, _ := st.(store.NativeSaleCreator)
	return &Service{
		store:       st,
		native:      native,
		ledger:      ledgerSvc,
		audit:       auditLog,
		idempotency: idem,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateSale validates the candidate, admits it against current stock, then
// persists the sale and deducts inventory as a single logical unit. Callers
// never observe a state where stock was deducted but no sale exists, or the
// other way round.
func (s *Service) CreateSale(ctx context.Context, req CreateSaleRequest) (models.Sale, error) {
	if res := validate.Sale(validate.SaleInput{
		Items:         req.Items,
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
	}); !res.Valid {
		return models.Sale{}, &shared.ValidationError{Fields: res.Errors}
	}

	sale := models.Sale{
		ID:            shared.NewID("sal"),
		Total:         *req.Total,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		Notes:         req.Notes,
		Status:        models.SaleStatusCompleted,
		CreatedAt:     s.clock(),
		LastModified:  s.clock(),
	}
	for _, item := range req.Items {
		li := models.SaleLineItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.Price != nil {
			li.Price = *item.Price
		}
		if item.CostPrice != nil {
			li.CostPrice = *item.CostPrice
		}
		sale.Items = append(sale.Items, li)
	}
	if !sale.Total.Equal(sale.ItemsTotal()) {
		return models.Sale{}, shared.NewValidationError("total",
			fmt.Sprintf("must equal the sum of line items (%s)", sale.ItemsTotal()))
	}

	if req.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, req.IdempotencyKey, "sales"); err != nil {
			return models.Sale{}, err
		}
	}
	persisted, err := s.commitSale(ctx, sale)
	if err != nil {
		if req.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, req.IdempotencyKey, "sales")
		}
		return models.Sale{}, err
	}
	return persisted, nil
}

func (s *Service) commitSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	if s.native != nil {
		persisted, err := s.native.CreateSaleNative(ctx, sale)
		if err != nil {
			return models.Sale{}, err
		}
		s.audit.Log(ctx, models.AuditActionCreate, models.AuditEntitySale, persisted.ID, map[string]any{
			"total":     persisted.Total,
			"itemCount": len(persisted.Items),
		})
		return persisted, nil
	}

	var persisted models.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// Admission: resolve each distinct product once and check its summed
		// requirement before the first write. Two line items naming the same
		// product must be admitted against their combined quantity.
		products := make(map[string]models.Product, len(sale.Items))
		required := make(map[string]int, len(sale.Items))
		order := make([]string, 0, len(sale.Items))
		for _, item := range sale.Items {
			if _, seen := products[item.ProductID]; !seen {
				product, err := tx.GetProduct(ctx, item.ProductID)
				if err != nil {
					return err
				}
				products[item.ProductID] = product
				order = append(order, item.ProductID)
			}
			required[item.ProductID] += item.Quantity
		}
		for _, id := range order {
			product := products[id]
			if required[id] > product.Quantity {
				return &shared.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Quantity,
					Required:    required[id],
				}
			}
		}
		// Snapshot line-item denormalized fields at the moment of sale.
		for i := range sale.Items {
			product := products[sale.Items[i].ProductID]
			sale.Items[i].Name = product.Name
			sale.Items[i].SKU = product.SKU
			if sale.Items[i].CostPrice.IsZero() {
				sale.Items[i].CostPrice = product.CostPrice
			}
		}
		cause := fmt.Sprintf("Sale:%s", sale.ID)
		for _, id := range order {
			if _, err := s.ledger.AdjustWith(ctx, tx, id, products[id].Quantity-required[id], cause); err != nil {
				return &shared.PersistenceError{Op: "deduct stock", Err: err}
			}
		}
		inserted, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return &shared.PersistenceError{Op: "persist sale", Err: err}
		}
		persisted = inserted
		return nil
	})
	if err != nil {
		var perr *shared.PersistenceError
		if errors.As(err, &perr) {
			// The binding already restored the pre-transaction snapshot.
			s.audit.Log(ctx, models.AuditActionRollback, models.AuditEntitySale, sale.ID, map[string]any{
				"error": perr.Error(),
			})
			s.logger.Error("sale transaction rolled back", slog.String("sale_id", sale.ID), slog.Any("error", err))
		}
		return models.Sale{}, err
	}
	s.audit.Log(ctx, models.AuditActionCreate, models.AuditEntitySale, persisted.ID, map[string]any{
		"total":     persisted.Total,
		"itemCount": len(persisted.Items),
	})
	return persisted, nil
}

// UpdateStatus applies the completed→refunded transition, restoring each line
// item's quantity. Refunds run under the same all-or-nothing unit as sale
// creation.
func (s *Service) UpdateStatus(ctx context.Context, saleID string, status models.SaleStatus, reason string) (models.Sale, error) {
	if status != models.SaleStatusRefunded {
		return models.Sale{}, ErrInvalidTransition
	}
	var updated models.Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, err := tx.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status != models.SaleStatusCompleted {
			return ErrInvalidTransition
		}
		cause := fmt.Sprintf("Refund:%s", saleID)
		for _, item := range sale.Items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				// The product may have been deleted since the sale; restock
				// is then impossible and skipped.
				if errors.Is(err, shared.ErrNotFound) {
					continue
				}
				return &shared.PersistenceError{Op: "resolve product", Err: err}
			}
			if _, err := s.ledger.AdjustWith(ctx, tx, item.ProductID, product.Quantity+item.Quantity, cause); err != nil {
				return &shared.PersistenceError{Op: "restore stock", Err: err}
			}
		}
		sale.Status = models.SaleStatusRefunded
		sale.StatusReason = reason
		sale.LastModified = s.clock()
		updated, err = tx.UpdateSale(ctx, saleID, sale)
		if err != nil {
			return &shared.PersistenceError{Op: "persist refund", Err: err}
		}
		return nil
	})
	if err != nil {
		var perr *shared.PersistenceError
		if errors.As(err, &perr) {
			s.audit.Log(ctx, models.AuditActionRollback, models.AuditEntitySale, saleID, map[string]any{
				"error": perr.Error(),
			})
		}
		return models.Sale{}, err
	}
	s.audit.Log(ctx, models.AuditActionUpdate, models.AuditEntitySale, saleID, map[string]any{
		"status": string(models.SaleStatusRefunded),
		"reason": reason,
	})
	return updated, nil
}

// Get returns a sale by id.
func (s *Service) Get(ctx context.Context, id string) (models.Sale, error) {
	return s.store.GetSale(ctx, id)
}

// List returns all sales.
func (s *Service) List(ctx context.Context) ([]models.Sale, error) {
	return s.store.ListSales(ctx)
}
