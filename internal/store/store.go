// Package store defines the persistence contract the domain services operate
// against. Two interchangeable bindings exist: localstore (serialized
// collections with snapshot rollback) and postgres (native transactions).
// Services never branch on which binding is active.
package store

import (
	"context"

	"github.com/stocklane/stocklane/internal/models"
)

// Tx is the record surface available inside WithTx. Reads reflect earlier
// writes made in the same transaction.
type Tx interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (models.Product, error)
	// GetProductBySKU returns the product carrying the SKU, used to enforce
	// SKU uniqueness at create/update time.
	GetProductBySKU(ctx context.Context, sku string) (models.Product, error)
	// InsertProduct assigns an id when the entity carries none.
	InsertProduct(ctx context.Context, p models.Product) (models.Product, error)
	UpdateProduct(ctx context.Context, id string, p models.Product) (models.Product, error)
	// DeleteProduct returns the removed entity for audit purposes.
	DeleteProduct(ctx context.Context, id string) (models.Product, error)

	ListSales(ctx context.Context) ([]models.Sale, error)
	GetSale(ctx context.Context, id string) (models.Sale, error)
	InsertSale(ctx context.Context, s models.Sale) (models.Sale, error)
	UpdateSale(ctx context.Context, id string, s models.Sale) (models.Sale, error)

	// AppendAudit records an action. The audit log sits outside the
	// snapshot/rollback unit: entries written by a rolled-back transaction
	// are kept, followed by the ROLLBACK entry.
	AppendAudit(ctx context.Context, e models.AuditEntry) error
}

// Store is the full persistence contract. Every successful write is visible
// to subsequent reads; list reads may be served from a bounded-staleness
// cache that each binding invalidates on its own writes.
type Store interface {
	Tx

	// WithTx runs fn as a single logical unit: either every enclosed
	// mutation survives, or none does. The localstore binding implements
	// this with a whole-collection snapshot restored verbatim on error; the
	// postgres binding opens a native transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListAudit returns entries ordered oldest to newest.
	ListAudit(ctx context.Context) ([]models.AuditEntry, error)
	// TrimAudit drops the oldest entries beyond max.
	TrimAudit(ctx context.Context, max int) error

	// ReplaceAll swaps the Products and Sales collections wholesale, used by
	// backup import. Not merged: existing rows are discarded.
	ReplaceAll(ctx context.Context, products []models.Product, sales []models.Sale) error
}

// NativeSaleCreator is an optional capability: a binding whose backend ships
// its own admission-then-commit sale path (the create_sale_with_customer
// function on postgres). The observable contract is identical to the
// coordinator's snapshot algorithm.
type NativeSaleCreator interface {
	CreateSaleNative(ctx context.Context, sale models.Sale) (models.Sale, error)
}
