package sales

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/store"
	"github.com/stocklane/stocklane/internal/store/localstore"
	"github.com/stocklane/stocklane/internal/validate"
)

// failingStore injects a persistence failure into the sale insert while
// delegating everything else to a real serialized-collection store.
type failingStore struct {
	*localstore.Store
	failInsertSale bool
}

func (f *failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, store: f})
	})
}

type failingTx struct {
	store.Tx
	store *failingStore
}

func (t *failingTx) InsertSale(ctx context.Context, sale models.Sale) (models.Sale, error) {
	if t.store.failInsertSale {
		return models.Sale{}, &shared.PersistenceError{Op: "insert sale", Err: context.DeadlineExceeded}
	}
	return t.Tx.InsertSale(ctx, sale)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func seed(t *testing.T, st store.Store, id string, qty int, price string) {
	t.Helper()
	_, err := st.InsertProduct(context.Background(), models.Product{
		ID:           id,
		Name:         "Product " + id,
		SKU:          "SKU-" + id,
		CostPrice:    decimal.RequireFromString("1.00"),
		SellingPrice: decimal.RequireFromString(price),
		Quantity:     qty,
	})
	require.NoError(t, err)
}

func newService(t *testing.T, st store.Store) *Service {
	t.Helper()
	auditLog := audit.NewLogger(st, nil, "test")
	return NewService(st, ledger.NewService(st, nil), auditLog, nil, nil)
}

func saleRequest(total string, items ...validate.SaleItemInput) CreateSaleRequest {
	return CreateSaleRequest{
		Items:         items,
		Total:         decPtr(total),
		PaymentMethod: "cash",
	}
}

func item(productID string, qty int, price string) validate.SaleItemInput {
	return validate.SaleItemInput{ProductID: productID, Quantity: qty, Price: decPtr(price)}
}

func TestCreateSaleDeductsStock(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")
	svc := newService(t, ls)

	sale, err := svc.CreateSale(context.Background(), saleRequest("12.00", item("prd_1", 3, "4.00")))
	require.NoError(t, err)
	require.Equal(t, models.SaleStatusCompleted, sale.Status)
	require.Equal(t, "Product prd_1", sale.Items[0].Name)
	require.Equal(t, "SKU-prd_1", sale.Items[0].SKU)
	require.True(t, sale.Items[0].CostPrice.Equal(decimal.RequireFromString("1.00")))

	p, err := ls.GetProduct(context.Background(), "prd_1")
	require.NoError(t, err)
	require.Equal(t, 7, p.Quantity)

	entries, err := ls.ListAudit(context.Background())
	require.NoError(t, err)
	var actions []models.AuditAction
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	require.Contains(t, actions, models.AuditActionStockAdjustment)
	require.Contains(t, actions, models.AuditActionCreate)
}

func TestCreateSaleMultiItem(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_a", 5, "2.00")
	seed(t, ls, "prd_b", 8, "3.00")
	svc := newService(t, ls)

	_, err = svc.CreateSale(context.Background(),
		saleRequest("13.00", item("prd_a", 2, "2.00"), item("prd_b", 3, "3.00")))
	require.NoError(t, err)

	a, _ := ls.GetProduct(context.Background(), "prd_a")
	b, _ := ls.GetProduct(context.Background(), "prd_b")
	require.Equal(t, 3, a.Quantity)
	require.Equal(t, 5, b.Quantity)
}

func TestCreateSaleInsufficientStock(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_a", 10, "1.00")
	seed(t, ls, "prd_b", 2, "1.00")
	svc := newService(t, ls)

	_, err = svc.CreateSale(context.Background(),
		saleRequest("8.00", item("prd_a", 3, "1.00"), item("prd_b", 5, "1.00")))
	var ierr *shared.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, "prd_b", ierr.ProductID)
	require.Equal(t, 2, ierr.Available)
	require.Equal(t, 5, ierr.Required)

	// Admission failed before any write: the first item is untouched.
	a, _ := ls.GetProduct(context.Background(), "prd_a")
	require.Equal(t, 10, a.Quantity)
	sales, _ := ls.ListSales(context.Background())
	require.Empty(t, sales)
}

func TestCreateSaleRepeatedProductDeductsSum(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 5, "4.00")
	svc := newService(t, ls)

	sale, err := svc.CreateSale(context.Background(),
		saleRequest("16.00", item("prd_1", 2, "4.00"), item("prd_1", 2, "4.00")))
	require.NoError(t, err)
	require.Len(t, sale.Items, 2)

	p, err := ls.GetProduct(context.Background(), "prd_1")
	require.NoError(t, err)
	require.Equal(t, 1, p.Quantity)
}

func TestCreateSaleRepeatedProductExceedsStock(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 5, "1.00")
	svc := newService(t, ls)

	// Each item fits on its own; together they need 6 of 5.
	_, err = svc.CreateSale(context.Background(),
		saleRequest("6.00", item("prd_1", 3, "1.00"), item("prd_1", 3, "1.00")))
	var ierr *shared.InsufficientStockError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, "prd_1", ierr.ProductID)
	require.Equal(t, 5, ierr.Available)
	require.Equal(t, 6, ierr.Required)

	p, gerr := ls.GetProduct(context.Background(), "prd_1")
	require.NoError(t, gerr)
	require.Equal(t, 5, p.Quantity)
	sales, _ := ls.ListSales(context.Background())
	require.Empty(t, sales)
}

func TestCreateSaleExactStockToZero(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 3, "2.00")
	svc := newService(t, ls)

	_, err = svc.CreateSale(context.Background(), saleRequest("6.00", item("prd_1", 3, "2.00")))
	require.NoError(t, err)

	p, _ := ls.GetProduct(context.Background(), "prd_1")
	require.Equal(t, 0, p.Quantity)
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	svc := newService(t, ls)

	_, err = svc.CreateSale(context.Background(), saleRequest("2.00", item("prd_ghost", 1, "2.00")))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateSaleTotalMismatch(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")
	svc := newService(t, ls)

	_, err = svc.CreateSale(context.Background(), saleRequest("11.00", item("prd_1", 3, "4.00")))
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "total")
}

func TestCreateSaleRollsBackOnPersistenceFailure(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")
	fs := &failingStore{Store: ls, failInsertSale: true}
	svc := newService(t, fs)

	_, err = svc.CreateSale(context.Background(), saleRequest("12.00", item("prd_1", 3, "4.00")))
	var perr *shared.PersistenceError
	require.ErrorAs(t, err, &perr)

	// Stock deduction was rolled back with the failed sale.
	p, gerr := ls.GetProduct(context.Background(), "prd_1")
	require.NoError(t, gerr)
	require.Equal(t, 10, p.Quantity)
	sales, _ := ls.ListSales(context.Background())
	require.Empty(t, sales)

	// The rollback itself is on the audit trail.
	entries, aerr := ls.ListAudit(context.Background())
	require.NoError(t, aerr)
	var found bool
	for _, e := range entries {
		if e.Action == models.AuditActionRollback {
			found = true
		}
	}
	require.True(t, found)
}

func TestCreateSaleIdempotency(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idem := shared.NewIdempotencyStore(client, time.Minute)

	auditLog := audit.NewLogger(ls, nil, "test")
	svc := NewService(ls, ledger.NewService(ls, nil), auditLog, idem, nil)

	req := saleRequest("4.00", item("prd_1", 1, "4.00"))
	req.IdempotencyKey = uuid.NewString()

	_, err = svc.CreateSale(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.CreateSale(context.Background(), req)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	p, _ := ls.GetProduct(context.Background(), "prd_1")
	require.Equal(t, 9, p.Quantity)
}

func TestRefundRestoresStock(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")
	svc := newService(t, ls)

	sale, err := svc.CreateSale(context.Background(), saleRequest("12.00", item("prd_1", 3, "4.00")))
	require.NoError(t, err)

	refunded, err := svc.UpdateStatus(context.Background(), sale.ID, models.SaleStatusRefunded, "customer return")
	require.NoError(t, err)
	require.Equal(t, models.SaleStatusRefunded, refunded.Status)
	require.Equal(t, "customer return", refunded.StatusReason)

	p, _ := ls.GetProduct(context.Background(), "prd_1")
	require.Equal(t, 10, p.Quantity)
}

func TestRefundTwiceRejected(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")
	svc := newService(t, ls)

	sale, err := svc.CreateSale(context.Background(), saleRequest("4.00", item("prd_1", 1, "4.00")))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), sale.ID, models.SaleStatusRefunded, "first")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(context.Background(), sale.ID, models.SaleStatusRefunded, "second")
	require.ErrorIs(t, err, ErrInvalidTransition)

	p, _ := ls.GetProduct(context.Background(), "prd_1")
	require.Equal(t, 10, p.Quantity)
}

func TestRefundSkipsDeletedProducts(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	seed(t, ls, "prd_1", 10, "4.00")
	svc := newService(t, ls)

	sale, err := svc.CreateSale(context.Background(), saleRequest("4.00", item("prd_1", 1, "4.00")))
	require.NoError(t, err)

	_, err = ls.DeleteProduct(context.Background(), "prd_1")
	require.NoError(t, err)

	refunded, err := svc.UpdateStatus(context.Background(), sale.ID, models.SaleStatusRefunded, "return")
	require.NoError(t, err)
	require.Equal(t, models.SaleStatusRefunded, refunded.Status)
}

func TestStatusTransitionsOtherThanRefund(t *testing.T) {
	ls, err := localstore.Open("")
	require.NoError(t, err)
	svc := newService(t, ls)

	_, err = svc.UpdateStatus(context.Background(), "sal_1", models.SaleStatusPending, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.UpdateStatus(context.Background(), "sal_1", models.SaleStatusCompleted, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}
