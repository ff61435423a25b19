// Package postgres is the hosted-backend binding of store.Store. Multi-step
// units run inside native repeatable-read transactions; sale creation uses
// the create_sale_with_customer function, which carries the same
// admission-then-commit contract as the coordinator's snapshot path.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const productsCacheKey = "cache:products"

// uniqueViolation is the postgres error code raised by the sku unique index.
const uniqueViolation = "23505"

// DB is the query surface shared by the pool and an open transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists collections in PostgreSQL with a bounded-staleness redis
// cache in front of product list reads.
type Store struct {
	pool      *pgxpool.Pool
	cache     *redis.Client
	staleness time.Duration
	logger    *slog.Logger
	queries   queries
}

// Option customises a Store.
type Option func(*Store)

// WithCache installs the redis read cache. ttl bounds staleness.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = client
		s.staleness = ttl
	}
}

// New builds the binding over an existing pool.
func New(pool *pgxpool.Pool, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{pool: pool, logger: logger, staleness: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	s.queries = queries{db: pool}
	return s
}

// Migrate applies the embedded schema files in lexical order. Statements are
// written to be idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(raw)); err != nil {
			return fmt.Errorf("postgres: apply %s: %w", name, err)
		}
	}
	return nil
}

// invalidate drops the product list cache after a write.
func (s *Store) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, productsCacheKey).Err(); err != nil {
		s.logger.Warn("product cache invalidate failed", slog.Any("error", err))
	}
}

// ListProducts serves from redis inside the staleness window, falling back
// to the database on miss or cache trouble.
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, productsCacheKey).Bytes()
		if err == nil {
			var products []models.Product
			if err := json.Unmarshal(raw, &products); err == nil {
				return products, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("product cache read failed", slog.Any("error", err))
		}
	}
	products, err := s.queries.listProducts(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(products); err == nil {
			if err := s.cache.Set(ctx, productsCacheKey, raw, s.staleness).Err(); err != nil {
				s.logger.Warn("product cache write failed", slog.Any("error", err))
			}
		}
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (models.Product, error) {
	return s.queries.getProduct(ctx, id)
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (models.Product, error) {
	return s.queries.getProductBySKU(ctx, sku)
}

func (s *Store) InsertProduct(ctx context.Context, p models.Product) (models.Product, error) {
	created, err := s.queries.insertProduct(ctx, p)
	if err != nil {
		return models.Product{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, p models.Product) (models.Product, error) {
	updated, err := s.queries.updateProduct(ctx, id, p)
	if err != nil {
		return models.Product{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) (models.Product, error) {
	removed, err := s.queries.deleteProduct(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	s.invalidate(ctx)
	return removed, nil
}

func (s *Store) ListSales(ctx context.Context) ([]models.Sale, error) {
	return s.queries.listSales(ctx)
}

func (s *Store) GetSale(ctx context.Context, id string) (models.Sale, error) {
	return s.queries.getSale(ctx, id)
}

func (s *Store) InsertSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	return s.queries.insertSale(ctx, sale)
}

func (s *Store) UpdateSale(ctx context.Context, id string, sale models.Sale) (models.Sale, error) {
	return s.queries.updateSale(ctx, id, sale)
}

func (s *Store) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	return s.queries.appendAudit(ctx, e)
}

func (s *Store) ListAudit(ctx context.Context) ([]models.AuditEntry, error) {
	return s.queries.listAudit(ctx)
}

func (s *Store) TrimAudit(ctx context.Context, max int) error {
	return s.queries.trimAudit(ctx, max)
}

// ReplaceAll swaps both collections inside one transaction.
func (s *Store) ReplaceAll(ctx context.Context, products []models.Product, sales []models.Sale) error {
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ptx := tx.(*pgTx)
		if _, err := ptx.q.db.Exec(ctx, `DELETE FROM sales`); err != nil {
			return err
		}
		if _, err := ptx.q.db.Exec(ctx, `DELETE FROM products`); err != nil {
			return err
		}
		for _, p := range products {
			if _, err := ptx.q.insertProduct(ctx, p); err != nil {
				return err
			}
		}
		for _, sale := range sales {
			if _, err := ptx.q.insertSale(ctx, sale); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// WithTx runs fn inside a repeatable-read transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{q: queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// CreateSaleNative routes sale creation through create_sale_with_customer.
func (s *Store) CreateSaleNative(ctx context.Context, sale models.Sale) (models.Sale, error) {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return models.Sale{}, fmt.Errorf("postgres: marshal items: %w", err)
	}
	var (
		ok        bool
		saleID    *string
		errCode   *string
		errDetail []byte
	)
	row := s.pool.QueryRow(ctx,
		`SELECT ok, sale_id, error_code, error_detail
		 FROM create_sale_with_customer($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID, items, sale.Total.String(), string(sale.PaymentMethod),
		sale.Notes, sale.CustomerID, sale.CustomerName)
	if err := row.Scan(&ok, &saleID, &errCode, &errDetail); err != nil {
		return models.Sale{}, &shared.PersistenceError{Op: "create sale", Err: err}
	}
	if !ok {
		return models.Sale{}, nativeSaleError(errCode, errDetail)
	}
	s.invalidate(ctx)
	return s.GetSale(ctx, *saleID)
}

func nativeSaleError(code *string, detail []byte) error {
	var fields struct {
		ProductID   string `json:"productId"`
		ProductName string `json:"productName"`
		Available   int    `json:"available"`
		Required    int    `json:"required"`
	}
	_ = json.Unmarshal(detail, &fields)
	if code == nil {
		return &shared.PersistenceError{Op: "create sale", Err: errors.New("unknown failure")}
	}
	switch *code {
	case "PRODUCT_NOT_FOUND":
		return &shared.NotFoundError{Entity: "product", ID: fields.ProductID}
	case "INSUFFICIENT_STOCK":
		return &shared.InsufficientStockError{
			ProductID:   fields.ProductID,
			ProductName: fields.ProductName,
			Available:   fields.Available,
			Required:    fields.Required,
		}
	default:
		return &shared.PersistenceError{Op: "create sale", Err: fmt.Errorf("backend error %s", *code)}
	}
}

// pgTx exposes the transactional record surface.
type pgTx struct {
	q queries
}

func (t *pgTx) ListProducts(ctx context.Context) ([]models.Product, error) {
	return t.q.listProducts(ctx)
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (models.Product, error) {
	return t.q.getProduct(ctx, id)
}

func (t *pgTx) GetProductBySKU(ctx context.Context, sku string) (models.Product, error) {
	return t.q.getProductBySKU(ctx, sku)
}

func (t *pgTx) InsertProduct(ctx context.Context, p models.Product) (models.Product, error) {
	return t.q.insertProduct(ctx, p)
}

func (t *pgTx) UpdateProduct(ctx context.Context, id string, p models.Product) (models.Product, error) {
	return t.q.updateProduct(ctx, id, p)
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) (models.Product, error) {
	return t.q.deleteProduct(ctx, id)
}

func (t *pgTx) ListSales(ctx context.Context) ([]models.Sale, error) {
	return t.q.listSales(ctx)
}

func (t *pgTx) GetSale(ctx context.Context, id string) (models.Sale, error) {
	return t.q.getSale(ctx, id)
}

func (t *pgTx) InsertSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	return t.q.insertSale(ctx, sale)
}

func (t *pgTx) UpdateSale(ctx context.Context, id string, sale models.Sale) (models.Sale, error) {
	return t.q.updateSale(ctx, id, sale)
}

func (t *pgTx) AppendAudit(ctx context.Context, e models.AuditEntry) error {
	return t.q.appendAudit(ctx, e)
}

var (
	_ store.Store             = (*Store)(nil)
	_ store.NativeSaleCreator = (*Store)(nil)
)

// mustDecimal converts a numeric rendered as text back into a decimal.
func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
