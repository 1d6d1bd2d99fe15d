package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/adisurya/go-storefront/internal/cachex"
	"github.com/adisurya/go-storefront/internal/cart"
	"github.com/adisurya/go-storefront/internal/catalog"
	"github.com/adisurya/go-storefront/internal/checkout"
	"github.com/adisurya/go-storefront/internal/inventory"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/adisurya/go-storefront/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProcessor struct{}

func (stubProcessor) CreateSession(_ context.Context, req payment.SessionRequest) (payment.Session, error) {
	return payment.Session{Ref: "sess-" + req.OrderID, RedirectURL: "https://pay.example/" + req.OrderID}, nil
}

func (stubProcessor) Refund(context.Context, string, int) error { return nil }

func newCheckoutRouter(t *testing.T) (*chi.Mux, *cart.MemoryStore, *catalog.MemoryStore, *inventory.MemoryLedger) {
	t.Helper()
	ledger := inventory.NewMemoryLedger()
	carts := cart.NewMemoryStore(inventory.LedgerAvailability(ledger))
	cat := catalog.NewMemoryStore()
	h := &CheckoutHandler{
		Orchestrator: &checkout.Orchestrator{
			Carts:       carts,
			Catalog:     cat,
			Ledger:      ledger,
			Orders:      order.NewMemoryRepo(),
			Processor:   stubProcessor{},
			Invalidator: cachex.Nop{},
			Log:         zap.NewNop(),
			Pricer: checkout.Pricer{
				DefaultTaxRate: 0.1,
				ShippingRates:  map[string]int{"standard": 500},
			},
			ReservationTTL: time.Minute,
		},
		Log: zap.NewNop(),
	}
	router := chi.NewRouter()
	h.Register(router)
	return router, carts, cat, ledger
}

func checkoutBody() checkoutReq {
	addr := order.Address{Name: "Ada", Street: "12 Engine St", City: "London", Region: "CA", Country: "US"}
	return checkoutReq{
		Customer:        order.CustomerInfo{Name: "Ada", Email: "ada@example.com"},
		ShippingAddress: addr,
		BillingAddress:  addr,
		ShippingMethod:  "standard",
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	router, _, _, _ := newCheckoutRouter(t)

	w := doJSON(t, router, http.MethodPost, "/checkout", checkoutBody(),
		map[string]string{"X-User-Id": "user-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(checkout.KindEmptyCart), resp["kind"])
}

func TestCheckoutHappyPath(t *testing.T) {
	router, carts, cat, ledger := newCheckoutRouter(t)
	ctx := context.Background()
	cat.Put(catalog.Product{ID: "p1", SKU: "sku-p1", Name: "Widget", PriceCents: 2000, Active: true})
	require.NoError(t, ledger.SetStock(ctx, "p1", 5))
	_, err := carts.AddItem(ctx, "user-1", "p1", "", 2)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/checkout", checkoutBody(),
		map[string]string{"X-User-Id": "user-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var res checkout.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.OrderID)
	assert.NotEmpty(t, res.PaymentSessionRef)
	assert.Equal(t, 4000, res.SubtotalCents)
	assert.Equal(t, 400, res.TaxCents)
	assert.Equal(t, 500, res.ShippingCents)
	assert.Equal(t, 4900, res.TotalCents)
}

func TestCheckoutInsufficientStock(t *testing.T) {
	router, carts, cat, ledger := newCheckoutRouter(t)
	ctx := context.Background()
	cat.Put(catalog.Product{ID: "p1", SKU: "sku-p1", Name: "Widget", PriceCents: 2000, Active: true})
	require.NoError(t, ledger.SetStock(ctx, "p1", 1))
	_, err := carts.AddItem(ctx, "user-1", "p1", "", 3)
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/checkout", checkoutBody(),
		map[string]string{"X-User-Id": "user-1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(checkout.KindInsufficientInventory), resp["kind"])
	assert.Equal(t, "p1", resp["product_id"])
}

func TestCheckoutMissingIdentity(t *testing.T) {
	router, _, _, _ := newCheckoutRouter(t)
	w := doJSON(t, router, http.MethodPost, "/checkout", checkoutBody(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
