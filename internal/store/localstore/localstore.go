// Package localstore is the serialized-collection binding of store.Store.
// Collections live in memory and the whole document is rewritten to disk on
// every mutation, which is what makes single writes atomic from the caller's
// point of view. Multi-step units use an explicit snapshot of the Product and
// Sale collections, restored verbatim when the unit fails.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/store"
)

// DefaultStaleness bounds how long list reads may be served from cache.
const DefaultStaleness = 30 * time.Second

const documentVersion = "1"

// document is the on-disk shape, shared with backup export/import.
type document struct {
	Version  string              `json:"version"`
	SavedAt  time.Time           `json:"timestamp"`
	Products []models.Product    `json:"products"`
	Sales    []models.Sale       `json:"sales"`
	AuditLog []models.AuditEntry `json:"auditLog"`
}

// Store keeps every collection in memory behind one mutex. WithTx holds the
// mutex for the whole unit, which gives the coordinator the exclusive logical
// ownership the atomicity contract relies on.
type Store struct {
	mu   sync.Mutex
	path string

	products     map[string]models.Product
	productOrder []string
	sales        map[string]models.Sale
	saleOrder    []string
	audit        []models.AuditEntry

	staleness time.Duration
	clock     func() time.Time

	productCache listCache[models.Product]
	saleCache    listCache[models.Sale]
}

type listCache[T any] struct {
	items []T
	at    time.Time
	valid bool
}

// Option customises a Store.
type Option func(*Store)

// WithStaleness overrides the read-cache staleness window.
func WithStaleness(d time.Duration) Option {
	return func(s *Store) { s.staleness = d }
}

// WithClock injects a clock, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// Open loads the document at path, creating it on first write. An empty path
// keeps the store purely in memory.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      path,
		products:  make(map[string]models.Product),
		sales:     make(map[string]models.Sale),
		staleness: DefaultStaleness,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("localstore: read %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("localstore: parse %s: %w", path, err)
	}
	for _, p := range doc.Products {
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}
	for _, sale := range doc.Sales {
		s.sales[sale.ID] = sale
		s.saleOrder = append(s.saleOrder, sale.ID)
	}
	s.audit = doc.AuditLog
	return s, nil
}

// persist rewrites the whole document. Callers hold s.mu.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	doc := document{
		Version:  documentVersion,
		SavedAt:  s.clock(),
		Products: s.listProducts(),
		Sales:    s.listSales(),
		AuditLog: append([]models.AuditEntry(nil), s.audit...),
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("localstore: marshal: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("localstore: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("localstore: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("localstore: rename: %w", err)
	}
	return nil
}

// invalidate drops the list caches. Called after every write.
func (s *Store) invalidate() {
	s.productCache = listCache[models.Product]{}
	s.saleCache = listCache[models.Sale]{}
}

func (s *Store) listProducts() []models.Product {
	out := make([]models.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		out = append(out, s.products[id])
	}
	return out
}

func (s *Store) listSales() []models.Sale {
	out := make([]models.Sale, 0, len(s.saleOrder))
	for _, id := range s.saleOrder {
		out = append(out, s.sales[id])
	}
	return out
}

// ---- reads ----

// ListProducts serves from the staleness-bounded cache when fresh.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listProductsCached(), nil
}

func (s *Store) listProductsCached() []models.Product {
	now := s.clock()
	if s.productCache.valid && now.Sub(s.productCache.at) <= s.staleness {
		return append([]models.Product(nil), s.productCache.items...)
	}
	items := s.listProducts()
	s.productCache = listCache[models.Product]{items: items, at: now, valid: true}
	return append([]models.Product(nil), items...)
}

func (s *Store) ListSales(ctx context.Context) ([]models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listSalesCached(), nil
}

func (s *Store) listSalesCached() []models.Sale {
	now := s.clock()
	if s.saleCache.valid && now.Sub(s.saleCache.at) <= s.staleness {
		return append([]models.Sale(nil), s.saleCache.items...)
	}
	items := s.listSales()
	s.saleCache = listCache[models.Sale]{items: items, at: now, valid: true}
	return append([]models.Sale(nil), items...)
}

func (s *Store) GetProduct(ctx context.Context, id string) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getProduct(id)
}

func (s *Store) getProduct(id string) (models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, &shared.NotFoundError{Entity: "product", ID: id}
	}
	return p, nil
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getProductBySKU(sku)
}

func (s *Store) getProductBySKU(sku string) (models.Product, error) {
	for _, id := range s.productOrder {
		if p := s.products[id]; p.SKU == sku {
			return p, nil
		}
	}
	return models.Product{}, &shared.NotFoundError{Entity: "product", ID: sku}
}

func (s *Store) GetSale(ctx context.Context, id string) (models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSale(id)
}

func (s *Store) getSale(id string) (models.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return models.Sale{}, &shared.NotFoundError{Entity: "sale", ID: id}
	}
	return cloneSale(sale), nil
}

// ---- writes ----

func (s *Store) InsertProduct(ctx context.Context, p models.Product) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertProduct(p)
}

func (s *Store) insertProduct(p models.Product) (models.Product, error) {
	if p.ID == "" {
		p.ID = shared.NewID("prd")
	}
	if _, exists := s.products[p.ID]; exists {
		return models.Product{}, fmt.Errorf("localstore: product %s already exists", p.ID)
	}
	s.products[p.ID] = p
	s.productOrder = append(s.productOrder, p.ID)
	s.invalidate()
	if err := s.persist(); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, p models.Product) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateProduct(id, p)
}

func (s *Store) updateProduct(id string, p models.Product) (models.Product, error) {
	if _, ok := s.products[id]; !ok {
		return models.Product{}, &shared.NotFoundError{Entity: "product", ID: id}
	}
	p.ID = id
	s.products[id] = p
	s.invalidate()
	if err := s.persist(); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteProduct(id)
}

func (s *Store) deleteProduct(id string) (models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, &shared.NotFoundError{Entity: "product", ID: id}
	}
	delete(s.products, id)
	for i, pid := range s.productOrder {
		if pid == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	s.invalidate()
	if err := s.persist(); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func (s *Store) InsertSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertSale(sale)
}

func (s *Store) insertSale(sale models.Sale) (models.Sale, error) {
	if sale.ID == "" {
		sale.ID = shared.NewID("sal")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return models.Sale{}, fmt.Errorf("localstore: sale %s already exists", sale.ID)
	}
	s.sales[sale.ID] = cloneSale(sale)
	s.saleOrder = append(s.saleOrder, sale.ID)
	s.invalidate()
	if err := s.persist(); err != nil {
		return models.Sale{}, err
	}
	return sale, nil
}

func (s *Store) UpdateSale(ctx context.Context, id string, sale models.Sale) (models.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSale(id, sale)
}

func (s *Store) updateSale(id string, sale models.Sale) (models.Sale, error) {
	if _, ok := s.sales[id]; !ok {
		return models.Sale{}, &shared.NotFoundError{Entity: "sale", ID: id}
	}
	sale.ID = id
	s.sales[id] = cloneSale(sale)
	s.invalidate()
	if err := s.persist(); err != nil {
		return models.Sale{}, err
	}
	return sale, nil
}

func (s *Store) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(e)
}

func (s *Store) appendAudit(e models.AuditEntry) error {
	s.audit = append(s.audit, e)
	if excess := len(s.audit) - models.MaxAuditEntries; excess > 0 {
		s.audit = append([]models.AuditEntry(nil), s.audit[excess:]...)
	}
	return s.persist()
}

func (s *Store) ListAudit(ctx context.Context) ([]models.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry(nil), s.audit...), nil
}

func (s *Store) TrimAudit(ctx context.Context, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max < 0 {
		max = 0
	}
	if excess := len(s.audit) - max; excess > 0 {
		s.audit = append([]models.AuditEntry(nil), s.audit[excess:]...)
		return s.persist()
	}
	return nil
}

func (s *Store) ReplaceAll(ctx context.Context, products []models.Product, sales []models.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]models.Product, len(products))
	s.productOrder = s.productOrder[:0]
	for _, p := range products {
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}
	s.sales = make(map[string]models.Sale, len(sales))
	s.saleOrder = s.saleOrder[:0]
	for _, sale := range sales {
		s.sales[sale.ID] = cloneSale(sale)
		s.saleOrder = append(s.saleOrder, sale.ID)
	}
	s.invalidate()
	return s.persist()
}

// ---- transactions ----

type snapshot struct {
	products     map[string]models.Product
	productOrder []string
	sales        map[string]models.Sale
	saleOrder    []string
}

func (s *Store) takeSnapshot() snapshot {
	snap := snapshot{
		products:     make(map[string]models.Product, len(s.products)),
		productOrder: append([]string(nil), s.productOrder...),
		sales:        make(map[string]models.Sale, len(s.sales)),
		saleOrder:    append([]string(nil), s.saleOrder...),
	}
	for id, p := range s.products {
		snap.products[id] = p
	}
	for id, sale := range s.sales {
		snap.sales[id] = cloneSale(sale)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.products = snap.products
	s.productOrder = snap.productOrder
	s.sales = snap.sales
	s.saleOrder = snap.saleOrder
	s.invalidate()
}

// WithTx holds the store lock for the whole unit and restores the
// pre-transaction Products and Sales verbatim when fn fails. The audit log is
// deliberately left out of the snapshot.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.takeSnapshot()
	if err := fn(ctx, &localTx{s: s}); err != nil {
		s.restore(snap)
		if perr := s.persist(); perr != nil {
			return fmt.Errorf("localstore: rollback persist: %v (original: %w)", perr, err)
		}
		return err
	}
	return nil
}

// localTx reuses the store internals without re-locking; the WithTx caller
// already owns the mutex.
type localTx struct {
	s *Store
}

func (t *localTx) ListProducts(ctx context.Context) ([]models.Product, error) {
	return t.s.listProducts(), nil
}

func (t *localTx) GetProduct(ctx context.Context, id string) (models.Product, error) {
	return t.s.getProduct(id)
}

func (t *localTx) GetProductBySKU(ctx context.Context, sku string) (models.Product, error) {
	return t.s.getProductBySKU(sku)
}

func (t *localTx) InsertProduct(ctx context.Context, p models.Product) (models.Product, error) {
	return t.s.insertProduct(p)
}

func (t *localTx) UpdateProduct(ctx context.Context, id string, p models.Product) (models.Product, error) {
	return t.s.updateProduct(id, p)
}

func (t *localTx) DeleteProduct(ctx context.Context, id string) (models.Product, error) {
	return t.s.deleteProduct(id)
}

func (t *localTx) ListSales(ctx context.Context) ([]models.Sale, error) {
	return t.s.listSales(), nil
}

func (t *localTx) GetSale(ctx context.Context, id string) (models.Sale, error) {
	return t.s.getSale(id)
}

func (t *localTx) InsertSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	return t.s.insertSale(sale)
}

func (t *localTx) UpdateSale(ctx context.Context, id string, sale models.Sale) (models.Sale, error) {
	return t.s.updateSale(id, sale)
}

func (t *localTx) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	return t.s.appendAudit(e)
}

func cloneSale(sale models.Sale) models.Sale {
	sale.Items = append([]models.SaleLineItem(nil), sale.Items...)
	return sale
}

var _ store.Store = (*Store)(nil)
