package backup

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/store/localstore"
)

func newTestBackup(t *testing.T) (*Service, *localstore.Store) {
	t.Helper()
	st, err := localstore.Open("")
	require.NoError(t, err)
	return NewService(st, audit.NewLogger(st, nil, "test"), nil), st
}

func sampleProduct(id string) models.Product {
	return models.Product{
		ID:           id,
		Name:         "Product " + id,
		SKU:          "SKU-" + id,
		CostPrice:    decimal.RequireFromString("1.00"),
		SellingPrice: decimal.RequireFromString("2.00"),
		Quantity:     4,
	}
}

func TestExportCarriesEverything(t *testing.T) {
	svc, st := newTestBackup(t)
	ctx := context.Background()

	_, err := st.InsertProduct(ctx, sampleProduct("prd_1"))
	require.NoError(t, err)
	_, err = st.InsertSale(ctx, models.Sale{ID: "sal_1", Total: decimal.RequireFromString("2.00"), Status: models.SaleStatusCompleted})
	require.NoError(t, err)

	doc, err := svc.Export(ctx)
	require.NoError(t, err)
	require.Equal(t, Version, doc.Version)
	require.False(t, doc.Timestamp.IsZero())
	require.Len(t, doc.Products, 1)
	require.Len(t, doc.Sales, 1)

	entries, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Equal(t, models.AuditActionExport, entries[len(entries)-1].Action)
}

func TestImportReplacesWholesale(t *testing.T) {
	svc, st := newTestBackup(t)
	ctx := context.Background()

	_, err := st.InsertProduct(ctx, sampleProduct("prd_old"))
	require.NoError(t, err)

	err = svc.Import(ctx, Document{
		Version:  Version,
		Products: []models.Product{sampleProduct("prd_new")},
		Sales:    []models.Sale{},
	})
	require.NoError(t, err)

	products, err := st.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "prd_new", products[0].ID)

	entries, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Equal(t, models.AuditActionImport, entries[len(entries)-1].Action)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	svc, _ := newTestBackup(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Import(ctx, Document{}), ErrInvalidDocument)
	require.ErrorIs(t, svc.Import(ctx, Document{Version: Version, Sales: []models.Sale{}}), ErrInvalidDocument)
	require.ErrorIs(t, svc.Import(ctx, Document{Version: Version, Products: []models.Product{}}), ErrInvalidDocument)
}

func TestExportImportRoundTrip(t *testing.T) {
	svc, st := newTestBackup(t)
	ctx := context.Background()

	_, err := st.InsertProduct(ctx, sampleProduct("prd_1"))
	require.NoError(t, err)
	doc, err := svc.Export(ctx)
	require.NoError(t, err)

	other, otherStore := newTestBackup(t)
	require.NoError(t, other.Import(ctx, doc))

	products, err := otherStore.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "prd_1", products[0].ID)
}
