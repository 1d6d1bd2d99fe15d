package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/adisurya/go-storefront/internal/cart"
	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type CartHandler struct {
	Store cart.Store
	Redis *redis.Client
	Log   *zap.Logger

	// sfg collapses concurrent cache misses for the same identity into a
	// single store read.
	sfg singleflight.Group
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Qty       int    `json:"qty"`
}

type mergeCartReq struct {
	GuestToken string `json:"guest_token"`
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addItem)
	r.Put("/cart/items", h.updateItem)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/merge", h.mergeCart)
}

func (h *CartHandler) getCart(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cart identity")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err, _ := h.sfg.Do(id, func() (any, error) {
		key := fmt.Sprintf(redisx.KeyCart, id)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			return json.RawMessage(s), nil
		}
		c, err := h.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		if err := h.Redis.Set(ctx, key, b, redisx.TTLCart).Err(); err != nil {
			h.Log.Warn("cart cache set failed", zap.String("identity", id), zap.Error(err))
		}
		return json.RawMessage(b), nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, h.Store.AddItem)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, h.Store.UpdateItem)
}

func (h *CartHandler) mutateItem(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, identity, productID, variantID string, qty int) (cart.Cart, error)) {
	id := identity(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cart identity")
		return
	}
	var req cartItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := op(ctx, id, req.ProductID, req.VariantID, req.Qty)
	if err != nil {
		writeCartError(w, err)
		return
	}
	h.dropCache(ctx, id)
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cart identity")
		return
	}
	productID := chi.URLParam(r, "productID")
	variantID := r.URL.Query().Get("variant_id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Store.RemoveItem(ctx, id, productID, variantID)
	if err != nil {
		writeCartError(w, err)
		return
	}
	h.dropCache(ctx, id)
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) clearCart(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cart identity")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.Clear(ctx, id); err != nil {
		writeCartError(w, err)
		return
	}
	h.dropCache(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// mergeCart folds a guest cart into the signed-in user's cart. The user id
// comes from the auth header, the guest token from the body.
func (h *CartHandler) mergeCart(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "merge requires an authenticated user")
		return
	}
	var req mergeCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.GuestToken == "" {
		writeError(w, http.StatusBadRequest, "missing guest_token")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Store.MergeGuestCart(ctx, req.GuestToken, userID)
	if err != nil {
		writeCartError(w, err)
		return
	}
	h.dropCache(ctx, userID)
	h.dropCache(ctx, req.GuestToken)
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) dropCache(ctx context.Context, id string) {
	key := fmt.Sprintf(redisx.KeyCart, id)
	if err := h.Redis.Del(ctx, key).Err(); err != nil {
		h.Log.Warn("cart cache drop failed", zap.String("identity", id), zap.Error(err))
	}
}

func writeCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
