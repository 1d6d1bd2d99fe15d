package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/adisurya/go-storefront/internal/order"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOrderRouter(t *testing.T) (*chi.Mux, *order.MemoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	repo := order.NewMemoryRepo()
	h := &OrderHandler{
		Repo:  repo,
		Redis: redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		Log:   zap.NewNop(),
	}
	router := chi.NewRouter()
	h.Register(router)
	return router, repo
}

func TestGetOrderOwnership(t *testing.T) {
	router, repo := newOrderRouter(t)
	require.NoError(t, repo.Create(context.Background(), order.Order{
		ID:        "ord-1",
		Identity:  "user-1",
		Status:    order.StatusPending,
		CreatedAt: time.Now(),
	}))

	w := doJSON(t, router, http.MethodGet, "/orders/ord-1", nil,
		map[string]string{"X-User-Id": "user-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var o order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &o))
	assert.Equal(t, "ord-1", o.ID)

	// Another identity sees not-found, not forbidden, to avoid leaking
	// order existence.
	w = doJSON(t, router, http.MethodGet, "/orders/ord-1", nil,
		map[string]string{"X-User-Id": "user-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/orders/missing", nil,
		map[string]string{"X-User-Id": "user-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderStatus(t *testing.T) {
	router, repo := newOrderRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, order.Order{
		ID:        "ord-1",
		Identity:  "user-1",
		Status:    order.StatusPending,
		CreatedAt: time.Now(),
	}))

	w := doJSON(t, router, http.MethodGet, "/orders/ord-1/status", nil,
		map[string]string{"X-User-Id": "user-1"})
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(order.StatusPending), body["status"])
	assert.NotContains(t, w.Body.String(), "identity")
}

func TestGetOrderStatusOwnership(t *testing.T) {
	router, repo := newOrderRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, order.Order{
		ID:        "ord-1",
		Identity:  "user-1",
		Status:    order.StatusPending,
		CreatedAt: time.Now(),
	}))

	// Anonymous and foreign callers both see not-found, matching getOrder.
	w := doJSON(t, router, http.MethodGet, "/orders/ord-1/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, http.MethodGet, "/orders/ord-1/status", nil,
		map[string]string{"X-User-Id": "user-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Warm the cache as the owner, then make sure a cache hit is scoped
	// the same way as a repo load.
	w = doJSON(t, router, http.MethodGet, "/orders/ord-1/status", nil,
		map[string]string{"X-User-Id": "user-1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodGet, "/orders/ord-1/status", nil,
		map[string]string{"X-User-Id": "user-2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
