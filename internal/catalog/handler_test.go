package catalog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/store/localstore"
)

func newTestRouter(t *testing.T) (chi.Router, *localstore.Store) {
	t.Helper()
	st, err := localstore.Open("")
	require.NoError(t, err)
	svc := NewService(st, audit.NewLogger(st, nil, "test"), nil)
	r := chi.NewRouter()
	r.Route("/products", NewHandler(nil, svc).MountRoutes)
	return r, st
}

func TestHandlerCreateAndGet(t *testing.T) {
	r, _ := newTestRouter(t)

	body := `{"name":"Widget","sku":"WID-1","costPrice":"2.00","sellingPrice":"3.50","quantity":4}`
	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, 4, created.Quantity)

	req = httptest.NewRequest(http.MethodGet, "/products/"+created.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerCreateValidationFailure(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem struct {
		Title  string            `json:"title"`
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Validation Failed", problem.Title)
	require.Contains(t, problem.Fields, "name")
}

func TestHandlerGetUnknownProduct(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/products/prd_missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDelete(t *testing.T) {
	r, st := newTestRouter(t)

	body := `{"name":"Widget","sku":"WID-1","costPrice":"1.00","sellingPrice":"2.00"}`
	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req = httptest.NewRequest(http.MethodDelete, "/products/"+created.ID, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	products, err := st.ListProducts(req.Context())
	require.NoError(t, err)
	require.Empty(t, products)
}
