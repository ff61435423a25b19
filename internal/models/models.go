// Package models holds the entity types shared by the store bindings and the
// domain services.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultLowStockThreshold applies when a product is created without one.
const DefaultLowStockThreshold = 5

// MaxAuditEntries caps audit-log retention. Insertion beyond the cap evicts
// the oldest entries.
const MaxAuditEntries = 1000

// Product is a single catalog entry. Quantity never goes negative; every
// quantity change goes through the stock ledger.
type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	SKU               string          `json:"sku"`
	CostPrice         decimal.Decimal `json:"costPrice"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	Category          string          `json:"category,omitempty"`
	Description       string          `json:"description,omitempty"`
	ImageURL          string          `json:"image,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	LastModified      time.Time       `json:"lastModified"`
}

// SaleStatus enumerates sale lifecycle states.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusRefunded  SaleStatus = "refunded"
	SaleStatusPending   SaleStatus = "pending"
)

// PaymentMethod enumerates accepted tender types.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodPOS      PaymentMethod = "pos"
)

// ValidPaymentMethod reports whether m is one of the accepted tender types.
func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodPOS:
		return true
	}
	return false
}

// SaleLineItem is one product+quantity entry embedded in a Sale. Name, SKU,
// Price and CostPrice are snapshots taken at sale time so historical reports
// stay accurate after the product is edited or deleted.
type SaleLineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
}

// LineTotal returns Price multiplied by Quantity.
func (li SaleLineItem) LineTotal() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// LineCost returns CostPrice multiplied by Quantity.
func (li SaleLineItem) LineCost() decimal.Decimal {
	return li.CostPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Sale is immutable once created, except for the completed→refunded status
// transition.
type Sale struct {
	ID            string          `json:"id"`
	Items         []SaleLineItem  `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	CustomerID    string          `json:"customerId,omitempty"`
	CustomerName  string          `json:"customerName,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Status        SaleStatus      `json:"status"`
	StatusReason  string          `json:"statusReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	LastModified  time.Time       `json:"lastModified"`
}

// ItemsTotal sums price×quantity across line items.
func (s Sale) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, li := range s.Items {
		total = total.Add(li.LineTotal())
	}
	return total
}

// AuditAction enumerates auditable operations.
type AuditAction string

const (
	AuditActionCreate          AuditAction = "CREATE"
	AuditActionUpdate          AuditAction = "UPDATE"
	AuditActionDelete          AuditAction = "DELETE"
	AuditActionStockAdjustment AuditAction = "STOCK_ADJUSTMENT"
	AuditActionRollback        AuditAction = "ROLLBACK"
	AuditActionExport          AuditAction = "EXPORT"
	AuditActionImport          AuditAction = "IMPORT"
)

// AuditEntityType names the entity an audit entry refers to.
type AuditEntityType string

const (
	AuditEntityProduct AuditEntityType = "PRODUCT"
	AuditEntitySale    AuditEntityType = "SALE"
	AuditEntityBackup  AuditEntityType = "BACKUP"
)

// AuditEntry is an append-only action record. Entries are never updated or
// deleted individually; the log is trimmed as a batch past the retention cap.
type AuditEntry struct {
	ID           string          `json:"id"`
	At           time.Time       `json:"timestamp"`
	Action       AuditAction     `json:"action"`
	EntityType   AuditEntityType `json:"entityType"`
	EntityID     string          `json:"entityId"`
	Details      map[string]any  `json:"details,omitempty"`
	OriginClient string          `json:"originClient,omitempty"`
}
