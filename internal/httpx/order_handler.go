package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type OrderHandler struct {
	Repo  order.Repo
	Redis *redis.Client
	Log   *zap.Logger
}

func (h *OrderHandler) Register(r *chi.Mux) {
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.Get(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Orders are only visible to their owner.
	if caller := identity(r); caller == "" || caller != o.Identity {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// statusCacheEntry is the cached shape of an order status. The owner identity
// travels with it so cache hits can be scoped without hitting the repo; only
// OrderID and Status go out on the wire.
type statusCacheEntry struct {
	Identity string       `json:"identity"`
	OrderID  string       `json:"order_id"`
	Status   order.Status `json:"status"`
}

// getOrderStatus serves the polled status with a short cache in front, since
// confirmation pages poll it until the webhook lands. The cache key is the
// order's invalidation tag, so reconciliation drops it the moment the status
// moves. Like getOrder, the status is only visible to the order's owner.
func (h *OrderHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := identity(r)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyCacheTag, cachex.TagOrder(id))
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		var entry statusCacheEntry
		if json.Unmarshal([]byte(s), &entry) == nil {
			if caller == "" || caller != entry.Identity {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"order_id": entry.OrderID, "status": entry.Status})
			return
		}
	}

	o, err := h.Repo.Get(ctx, id)
	if errors.Is(err, order.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if caller == "" || caller != o.Identity {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	entry := statusCacheEntry{Identity: o.Identity, OrderID: o.ID, Status: o.Status}
	b, _ := json.Marshal(entry)
	if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("order status cache set failed", zap.String("order_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": o.ID, "status": o.Status})
}
