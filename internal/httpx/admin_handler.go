package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AdminHandler covers the back-office surface: order fulfillment moves and
// manual stock adjustments.
type AdminHandler struct {
	Lifecycle   *order.Lifecycle
	Ledger      inventory.Ledger
	Invalidator cachex.Invalidator
	Log         *zap.Logger
}

type updateStatusReq struct {
	Status         order.Status `json:"status"`
	TrackingNumber string       `json:"tracking_number,omitempty"`
}

type adjustStockReq struct {
	ProductID string `json:"product_id"`
	Mode      string `json:"mode"` // SET, ADD or SUBTRACT
	Qty       int    `json:"qty"`
	Reason    string `json:"reason"`
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Put("/admin/orders/{id}/status", h.updateStatus)
	r.Post("/admin/inventory/adjust", h.adjustStock)
	r.Get("/admin/inventory/{productID}", h.getStock)
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !order.Valid(req.Status) {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.Transition(ctx, id, req.Status, req.TrackingNumber)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.Invalidator.Invalidate(ctx, cachex.TagOrders, cachex.TagOrder(id))
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ProductID == "" || req.Qty < 0 {
		writeError(w, http.StatusBadRequest, "missing product_id or negative qty")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var err error
	switch strings.ToUpper(req.Mode) {
	case "SET":
		err = h.Ledger.SetStock(ctx, req.ProductID, req.Qty)
	case "ADD":
		err = h.Ledger.Restock(ctx, req.ProductID, req.Qty)
	case "SUBTRACT":
		err = h.Ledger.Restock(ctx, req.ProductID, -req.Qty)
	default:
		writeError(w, http.StatusBadRequest, "mode must be SET, ADD or SUBTRACT")
		return
	}
	switch {
	case errors.Is(err, inventory.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "no inventory record")
		return
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.Log.Info("stock adjusted",
		zap.String("product_id", req.ProductID),
		zap.String("mode", strings.ToUpper(req.Mode)),
		zap.Int("qty", req.Qty),
		zap.String("reason", req.Reason))
	h.Invalidator.Invalidate(ctx, cachex.TagInventory, cachex.TagProducts, cachex.TagProduct(req.ProductID))

	rec, err := h.Ledger.Stock(ctx, req.ProductID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AdminHandler) getStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rec, err := h.Ledger.Stock(ctx, productID)
	if errors.Is(err, inventory.ErrProductNotFound) {
		writeError(w, http.StatusNotFound, "no inventory record")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
