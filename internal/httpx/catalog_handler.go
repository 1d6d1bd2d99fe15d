package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/catalog"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	Catalog catalog.Store
	Ledger  inventory.Ledger
	Redis   *redis.Client
	Log     *zap.Logger
}

type productView struct {
	catalog.Product
	AvailableQty int `json:"available_qty"`
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
}

// Cached renditions live under the same tag keys the invalidator deletes, so
// a commit or restock drops them on the next mutation.
func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyCacheTag, cachex.TagProducts)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]productView, 0, len(ps))
	for _, p := range ps {
		views = append(views, productView{Product: p, AvailableQty: h.available(ctx, p.ID)})
	}
	b, _ := json.Marshal(views)
	if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("product list cache set failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyCacheTag, cachex.TagProduct(id))
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	p, err := h.Catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	b, _ := json.Marshal(productView{Product: p, AvailableQty: h.available(ctx, p.ID)})
	if err := h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		h.Log.Warn("product cache set failed", zap.String("product_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

func (h *CatalogHandler) available(ctx context.Context, productID string) int {
	rec, err := h.Ledger.Stock(ctx, productID)
	if err != nil {
		return 0
	}
	return rec.Available()
}
