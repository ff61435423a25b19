package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
)

// queries holds the SQL surface. db is either the pool or an open tx, so the
// same statements serve both paths.
type queries struct {
	db DB
}

const productColumns = `id, name, sku, cost_price::text, selling_price::text,
	quantity, low_stock_threshold, category, description, image_url, created_at, last_modified`

func scanProduct(row pgx.Row) (models.Product, error) {
	var (
		p                  models.Product
		costPrice, selling string
	)
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &costPrice, &selling,
		&p.Quantity, &p.LowStockThreshold, &p.Category, &p.Description, &p.ImageURL,
		&p.CreatedAt, &p.LastModified)
	if err != nil {
		return models.Product{}, err
	}
	p.CostPrice = mustDecimal(costPrice)
	p.SellingPrice = mustDecimal(selling)
	return p, nil
}

func (q queries) listProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
	if err != nil {
		return nil, &shared.PersistenceError{Op: "list products", Err: err}
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, &shared.PersistenceError{Op: "list products", Err: err}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &shared.PersistenceError{Op: "list products", Err: err}
	}
	return products, nil
}

func (q queries) getProduct(ctx context.Context, id string) (models.Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Product{}, &shared.NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return models.Product{}, &shared.PersistenceError{Op: "get product", Err: err}
	}
	return p, nil
}

func (q queries) getProductBySKU(ctx context.Context, sku string) (models.Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Product{}, &shared.NotFoundError{Entity: "product", ID: sku}
	}
	if err != nil {
		return models.Product{}, &shared.PersistenceError{Op: "get product by sku", Err: err}
	}
	return p, nil
}

// skuConflict translates the unique index violation into the same field error
// the catalog pre-check produces, so concurrent inserts surface identically.
func skuConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return shared.NewValidationError("sku", "is already in use by another product")
	}
	return nil
}

func (q queries) insertProduct(ctx context.Context, p models.Product) (models.Product, error) {
	_, err := q.db.Exec(ctx,
		`INSERT INTO products
		 (id, name, sku, cost_price, selling_price, quantity, low_stock_threshold,
		  category, description, image_url, created_at, last_modified)
		 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Name, p.SKU, p.CostPrice.String(), p.SellingPrice.String(),
		p.Quantity, p.LowStockThreshold, p.Category, p.Description, p.ImageURL,
		p.CreatedAt, p.LastModified)
	if err != nil {
		if verr := skuConflict(err); verr != nil {
			return models.Product{}, verr
		}
		return models.Product{}, &shared.PersistenceError{Op: "insert product", Err: err}
	}
	return p, nil
}

func (q queries) updateProduct(ctx context.Context, id string, p models.Product) (models.Product, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE products SET
		   name = $2, sku = $3, cost_price = $4::numeric, selling_price = $5::numeric,
		   quantity = $6, low_stock_threshold = $7, category = $8, description = $9,
		   image_url = $10, last_modified = $11
		 WHERE id = $1`,
		id, p.Name, p.SKU, p.CostPrice.String(), p.SellingPrice.String(),
		p.Quantity, p.LowStockThreshold, p.Category, p.Description, p.ImageURL,
		p.LastModified)
	if err != nil {
		if verr := skuConflict(err); verr != nil {
			return models.Product{}, verr
		}
		return models.Product{}, &shared.PersistenceError{Op: "update product", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return models.Product{}, &shared.NotFoundError{Entity: "product", ID: id}
	}
	p.ID = id
	return p, nil
}

func (q queries) deleteProduct(ctx context.Context, id string) (models.Product, error) {
	removed, err := q.getProduct(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	if _, err := q.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return models.Product{}, &shared.PersistenceError{Op: "delete product", Err: err}
	}
	return removed, nil
}

const saleColumns = `id, items, total::text, payment_method, status,
	customer_id, customer_name, notes, status_reason, created_at, last_modified`

func scanSale(row pgx.Row) (models.Sale, error) {
	var (
		sale  models.Sale
		items []byte
		total string
	)
	err := row.Scan(&sale.ID, &items, &total, &sale.PaymentMethod, &sale.Status,
		&sale.CustomerID, &sale.CustomerName, &sale.Notes, &sale.StatusReason,
		&sale.CreatedAt, &sale.LastModified)
	if err != nil {
		return models.Sale{}, err
	}
	if err := json.Unmarshal(items, &sale.Items); err != nil {
		return models.Sale{}, fmt.Errorf("decode sale items: %w", err)
	}
	sale.Total = mustDecimal(total)
	return sale, nil
}

func (q queries) listSales(ctx context.Context) ([]models.Sale, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+saleColumns+` FROM sales ORDER BY created_at, id`)
	if err != nil {
		return nil, &shared.PersistenceError{Op: "list sales", Err: err}
	}
	defer rows.Close()

	sales := []models.Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, &shared.PersistenceError{Op: "list sales", Err: err}
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, &shared.PersistenceError{Op: "list sales", Err: err}
	}
	return sales, nil
}

func (q queries) getSale(ctx context.Context, id string) (models.Sale, error) {
	sale, err := scanSale(q.db.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Sale{}, &shared.NotFoundError{Entity: "sale", ID: id}
	}
	if err != nil {
		return models.Sale{}, &shared.PersistenceError{Op: "get sale", Err: err}
	}
	return sale, nil
}

func (q queries) insertSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return models.Sale{}, &shared.PersistenceError{Op: "insert sale", Err: err}
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO sales
		 (id, items, total, payment_method, status, customer_id, customer_name,
		  notes, status_reason, created_at, last_modified)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sale.ID, items, sale.Total.String(), sale.PaymentMethod, sale.Status,
		sale.CustomerID, sale.CustomerName, sale.Notes, sale.StatusReason,
		sale.CreatedAt, sale.LastModified)
	if err != nil {
		return models.Sale{}, &shared.PersistenceError{Op: "insert sale", Err: err}
	}
	return sale, nil
}

func (q queries) updateSale(ctx context.Context, id string, sale models.Sale) (models.Sale, error) {
	items, err := json.Marshal(sale.Items)
	if err != nil {
		return models.Sale{}, &shared.PersistenceError{Op: "update sale", Err: err}
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE sales SET
		   items = $2, total = $3::numeric, payment_method = $4, status = $5,
		   customer_id = $6, customer_name = $7, notes = $8, status_reason = $9,
		   last_modified = $10
		 WHERE id = $1`,
		id, items, sale.Total.String(), sale.PaymentMethod, sale.Status,
		sale.CustomerID, sale.CustomerName, sale.Notes, sale.StatusReason,
		sale.LastModified)
	if err != nil {
		return models.Sale{}, &shared.PersistenceError{Op: "update sale", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return models.Sale{}, &shared.NotFoundError{Entity: "sale", ID: id}
	}
	sale.ID = id
	return sale, nil
}

func (q queries) appendAudit(ctx context.Context, e models.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return &shared.PersistenceError{Op: "append audit", Err: err}
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO audit_log (id, occurred_at, action, entity_type, entity_id, details, origin_client)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.At, e.Action, e.EntityType, e.EntityID, details, e.OriginClient)
	if err != nil {
		return &shared.PersistenceError{Op: "append audit", Err: err}
	}
	// Keep the log bounded as entries arrive rather than via the trim job
	// alone, matching the serialized binding.
	_, err = q.db.Exec(ctx,
		`DELETE FROM audit_log WHERE seq <= (
		   SELECT seq FROM audit_log ORDER BY seq DESC OFFSET $1 LIMIT 1)`,
		models.MaxAuditEntries)
	if err != nil {
		return &shared.PersistenceError{Op: "trim audit", Err: err}
	}
	return nil
}

func (q queries) listAudit(ctx context.Context) ([]models.AuditEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, occurred_at, action, entity_type, entity_id, details, origin_client
		 FROM audit_log ORDER BY seq`)
	if err != nil {
		return nil, &shared.PersistenceError{Op: "list audit", Err: err}
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e       models.AuditEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.At, &e.Action, &e.EntityType, &e.EntityID, &details, &e.OriginClient); err != nil {
			return nil, &shared.PersistenceError{Op: "list audit", Err: err}
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, &shared.PersistenceError{Op: "list audit", Err: err}
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &shared.PersistenceError{Op: "list audit", Err: err}
	}
	return entries, nil
}

func (q queries) trimAudit(ctx context.Context, max int) error {
	_, err := q.db.Exec(ctx,
		`DELETE FROM audit_log WHERE seq <= (
		   SELECT seq FROM audit_log ORDER BY seq DESC OFFSET $1 LIMIT 1)`,
		max)
	if err != nil {
		return &shared.PersistenceError{Op: "trim audit", Err: err}
	}
	return nil
}
