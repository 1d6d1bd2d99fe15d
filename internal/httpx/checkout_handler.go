package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/adisurya/go-storefront/internal/checkout"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	Orchestrator *checkout.Orchestrator
	Log          *zap.Logger
}

type checkoutReq struct {
	Customer        order.CustomerInfo `json:"customer"`
	ShippingAddress order.Address      `json:"shipping_address"`
	BillingAddress  order.Address      `json:"billing_address"`
	ShippingMethod  string             `json:"shipping_method"`
}

func (h *CheckoutHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.initiate)
}

func (h *CheckoutHandler) initiate(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing cart identity")
		return
	}
	var req checkoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// The payment session call is in this path, so the timeout is wider
	// than for plain reads.
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Orchestrator.Initiate(ctx, checkout.Request{
		Identity:        id,
		Customer:        req.Customer,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		ShippingMethod:  req.ShippingMethod,
	})
	if err != nil {
		var cerr *checkout.Error
		if errors.As(err, &cerr) {
			recordCheckout(string(cerr.Kind))
			writeJSON(w, checkoutStatus(cerr.Kind), map[string]string{
				"error":      cerr.Error(),
				"kind":       string(cerr.Kind),
				"product_id": cerr.ProductID,
			})
			return
		}
		recordCheckout("INTERNAL")
		h.Log.Error("checkout failed", zap.String("identity", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	recordCheckout("OK")
	writeJSON(w, http.StatusCreated, res)
}

func checkoutStatus(kind checkout.Kind) int {
	switch kind {
	case checkout.KindValidation:
		return http.StatusBadRequest
	case checkout.KindEmptyCart:
		return http.StatusUnprocessableEntity
	case checkout.KindProductUnavailable, checkout.KindInsufficientInventory:
		return http.StatusConflict
	case checkout.KindPaymentProcessing:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
