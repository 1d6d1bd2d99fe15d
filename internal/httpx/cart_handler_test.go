package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adisurya/go-storefront/internal/cart"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newCartRouter(t *testing.T, ledger *inventory.MemoryLedger) (*chi.Mux, *cart.MemoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := cart.NewMemoryStore(inventory.LedgerAvailability(ledger))
	h := &CartHandler{
		Store: store,
		Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Log:   zap.NewNop(),
	}
	router := chi.NewRouter()
	h.Register(router)
	return router, store
}

func doJSON(t *testing.T, router *chi.Mux, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCartRequiresIdentity(t *testing.T) {
	router, _ := newCartRouter(t, inventory.NewMemoryLedger())

	w := doJSON(t, router, http.MethodGet, "/cart", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/cart/items",
		cartItemReq{ProductID: "p1", Qty: 1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartAddAndGet(t *testing.T) {
	router, _ := newCartRouter(t, inventory.NewMemoryLedger())
	hdr := map[string]string{"X-Cart-Session": "guest-1"}

	w := doJSON(t, router, http.MethodPost, "/cart/items",
		cartItemReq{ProductID: "p1", Qty: 2}, hdr)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/cart", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	var c cart.Cart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "p1", c.Lines[0].ProductID)
	assert.Equal(t, 2, c.Lines[0].Qty)

	// Second read is served from cache and must match.
	w = doJSON(t, router, http.MethodGet, "/cart", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)
	var cached cart.Cart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cached))
	assert.Equal(t, c.Lines, cached.Lines)
}

func TestCartMutationDropsCache(t *testing.T) {
	router, _ := newCartRouter(t, inventory.NewMemoryLedger())
	hdr := map[string]string{"X-Cart-Session": "guest-1"}

	doJSON(t, router, http.MethodPost, "/cart/items", cartItemReq{ProductID: "p1", Qty: 2}, hdr)
	doJSON(t, router, http.MethodGet, "/cart", nil, hdr) // warms the cache
	doJSON(t, router, http.MethodPost, "/cart/items", cartItemReq{ProductID: "p1", Qty: 1}, hdr)

	w := doJSON(t, router, http.MethodGet, "/cart", nil, hdr)
	var c cart.Cart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Lines[0].Qty, "read after mutation sees the new qty")
}

func TestCartRemoveItem(t *testing.T) {
	router, _ := newCartRouter(t, inventory.NewMemoryLedger())
	hdr := map[string]string{"X-User-Id": "user-1"}

	doJSON(t, router, http.MethodPost, "/cart/items", cartItemReq{ProductID: "p1", Qty: 2}, hdr)
	w := doJSON(t, router, http.MethodDelete, "/cart/items/p1", nil, hdr)
	require.Equal(t, http.StatusOK, w.Code)

	var c cart.Cart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Empty(t, c.Lines)
}

func TestCartInvalidQty(t *testing.T) {
	router, _ := newCartRouter(t, inventory.NewMemoryLedger())
	hdr := map[string]string{"X-Cart-Session": "guest-1"}

	w := doJSON(t, router, http.MethodPost, "/cart/items", cartItemReq{ProductID: "p1", Qty: 0}, hdr)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartMergeRequiresUser(t *testing.T) {
	router, _ := newCartRouter(t, inventory.NewMemoryLedger())

	w := doJSON(t, router, http.MethodPost, "/cart/merge",
		mergeCartReq{GuestToken: "guest-1"},
		map[string]string{"X-Cart-Session": "guest-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartMerge(t *testing.T) {
	ledger := inventory.NewMemoryLedger()
	require.NoError(t, ledger.SetStock(context.Background(), "p1", 10))
	router, _ := newCartRouter(t, ledger)

	doJSON(t, router, http.MethodPost, "/cart/items",
		cartItemReq{ProductID: "p1", Qty: 2}, map[string]string{"X-Cart-Session": "guest-1"})
	doJSON(t, router, http.MethodPost, "/cart/items",
		cartItemReq{ProductID: "p1", Qty: 1}, map[string]string{"X-User-Id": "user-1"})

	w := doJSON(t, router, http.MethodPost, "/cart/merge",
		mergeCartReq{GuestToken: "guest-1"}, map[string]string{"X-User-Id": "user-1"})
	require.Equal(t, http.StatusOK, w.Code)

	var c cart.Cart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Lines[0].Qty)
}
