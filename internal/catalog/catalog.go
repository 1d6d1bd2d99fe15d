package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("product not found")

type Product struct {
	ID                string    `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	PriceCents        int       `json:"price_cents"`
	Active            bool      `json:"active"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Store is the read surface checkout needs: current price for the snapshot
// and the sellable flag. Catalog browsing itself lives outside this core.
type Store interface {
	Get(ctx context.Context, productID string) (Product, error)
	List(ctx context.Context) ([]Product, error)
}
