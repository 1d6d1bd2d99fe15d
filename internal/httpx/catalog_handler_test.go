package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/adisurya/go-storefront/internal/catalog"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCatalogRouter(t *testing.T) (*chi.Mux, *catalog.MemoryStore, *inventory.MemoryLedger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cat := catalog.NewMemoryStore()
	ledger := inventory.NewMemoryLedger()
	h := &CatalogHandler{
		Catalog: cat,
		Ledger:  ledger,
		Redis:   redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Log:     zap.NewNop(),
	}
	router := chi.NewRouter()
	h.Register(router)
	return router, cat, ledger, mr
}

func TestListProductsWithAvailability(t *testing.T) {
	router, cat, ledger, _ := newCatalogRouter(t)
	ctx := context.Background()
	cat.Put(catalog.Product{ID: "p1", SKU: "a-sku", Name: "Widget", PriceCents: 2000, Active: true})
	cat.Put(catalog.Product{ID: "p2", SKU: "b-sku", Name: "Gadget", PriceCents: 3000, Active: true})
	require.NoError(t, ledger.SetStock(ctx, "p1", 7))

	w := doJSON(t, router, http.MethodGet, "/products", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var views []productView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, 7, views[0].AvailableQty)
	assert.Zero(t, views[1].AvailableQty, "no inventory record reads as zero")
}

func TestGetProduct(t *testing.T) {
	router, cat, ledger, _ := newCatalogRouter(t)
	cat.Put(catalog.Product{ID: "p1", SKU: "a-sku", Name: "Widget", PriceCents: 2000, Active: true})
	require.NoError(t, ledger.SetStock(context.Background(), "p1", 3))

	w := doJSON(t, router, http.MethodGet, "/products/p1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v productView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, "Widget", v.Name)
	assert.Equal(t, 3, v.AvailableQty)

	w = doJSON(t, router, http.MethodGet, "/products/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListProductsServedFromCache(t *testing.T) {
	router, cat, _, _ := newCatalogRouter(t)
	cat.Put(catalog.Product{ID: "p1", SKU: "a-sku", Name: "Widget", PriceCents: 2000, Active: true})

	w := doJSON(t, router, http.MethodGet, "/products", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A change without invalidation is invisible until the tag is dropped.
	cat.Put(catalog.Product{ID: "p2", SKU: "b-sku", Name: "Gadget", PriceCents: 3000, Active: true})
	w = doJSON(t, router, http.MethodGet, "/products", nil, nil)
	var views []productView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	assert.Len(t, views, 1)
}
