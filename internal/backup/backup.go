// Package backup serialises the whole dataset to a portable JSON document
// and restores it wholesale. Import replaces the Products and Sales
// collections outright; nothing is merged.
package backup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/store"
)

// Version identifies the document format.
const Version = "1"

// Document is the exported file shape.
type Document struct {
	Version   string              `json:"version"`
	Timestamp time.Time           `json:"timestamp"`
	Products  []models.Product    `json:"products"`
	Sales     []models.Sale       `json:"sales"`
	AuditLog  []models.AuditEntry `json:"auditLog"`
}

// ErrInvalidDocument is returned when an import payload misses the required
// version/products/sales fields.
var ErrInvalidDocument = errors.New("backup: document must carry version, products and sales")

// Service implements export and import.
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

// Export snapshots every collection into a Document.
func (s *Service) Export(ctx context.Context) (Document, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return Document{}, err
	}
	sales, err := s.store.ListSales(ctx)
	if err != nil {
		return Document{}, err
	}
	auditLog, err := s.store.ListAudit(ctx)
	if err != nil {
		return Document{}, err
	}
	doc := Document{
		Version:   Version,
		Timestamp: s.clock(),
		Products:  products,
		Sales:     sales,
		AuditLog:  auditLog,
	}
	s.audit.Log(ctx, models.AuditActionExport, models.AuditEntityBackup, doc.Timestamp.Format(time.RFC3339), map[string]any{
		"products": len(products),
		"sales":    len(sales),
	})
	return doc, nil
}

// Import validates the document and replaces the Products and Sales
// collections wholesale.
func (s *Service) Import(ctx context.Context, doc Document) error {
	if doc.Version == "" || doc.Products == nil || doc.Sales == nil {
		return ErrInvalidDocument
	}
	if err := s.store.ReplaceAll(ctx, doc.Products, doc.Sales); err != nil {
		return err
	}
	s.audit.Log(ctx, models.AuditActionImport, models.AuditEntityBackup, s.clock().Format(time.RFC3339), map[string]any{
		"products": len(doc.Products),
		"sales":    len(doc.Sales),
	})
	return nil
}
