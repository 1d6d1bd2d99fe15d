package cachex

import (
	"context"
	"fmt"

	"github.com/adisurya/go-storefront/internal/redisx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Tag identifies a slice of cached storefront content. Mutating components
// emit tags explicitly instead of relying on ambient revalidation.
type Tag string

const (
	TagProducts  Tag = "products"
	TagInventory Tag = "inventory"
	TagOrders    Tag = "orders"
)

func TagProduct(productID string) Tag { return Tag("product:" + productID) }
func TagOrder(orderID string) Tag     { return Tag("order:" + orderID) }

// Invalidator pushes invalidation signals to the content cache. Calls are
// fire-and-forget: failures are logged and never fail the mutation that
// triggered them.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...Tag)
}

type RedisInvalidator struct {
	Client *redis.Client
	Log    *zap.Logger
}

func (r *RedisInvalidator) Invalidate(ctx context.Context, tags ...Tag) {
	for _, tag := range tags {
		key := fmt.Sprintf(redisx.KeyCacheTag, tag)
		if err := r.Client.Del(ctx, key).Err(); err != nil {
			r.Log.Warn("cache invalidation failed",
				zap.String("tag", string(tag)),
				zap.Error(err))
		}
	}
}

// Nop satisfies Invalidator where no content cache is wired.
type Nop struct{}

func (Nop) Invalidate(context.Context, ...Tag) {}
