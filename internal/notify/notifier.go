package notify

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/adisurya/go-storefront/internal/kafka"
	"github.com/adisurya/go-storefront/internal/order"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TopicOrderConfirmed = "storefront.order.confirmed"
	TopicLowStock       = "storefront.stock.low"
)

const (
	EventOrderConfirmed = "OrderConfirmed"
	EventLowStock       = "LowStock"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type OrderConfirmedPayload struct {
	OrderID    string `json:"order_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	TotalCents int    `json:"total_cents"`
}

type LowStockPayload struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
}

// Notifier emits outbound notifications. Fire-and-forget: the commerce
// transition that triggered a notification never fails because of it.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o order.Order)
	LowStock(ctx context.Context, productID string, available int)
}

type KafkaNotifier struct {
	Orders  *kafkax.Producer
	Stock   *kafkax.Producer
	Service string
	Log     *zap.Logger
}

func (n *KafkaNotifier) publish(p *kafkax.Producer, eventType, key string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      n.Service,
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish([]byte(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (n *KafkaNotifier) OrderConfirmed(_ context.Context, o order.Order) {
	n.publish(n.Orders, EventOrderConfirmed, o.ID, OrderConfirmedPayload{
		OrderID:    o.ID,
		Email:      o.Customer.Email,
		Name:       o.Customer.Name,
		TotalCents: o.TotalCents,
	})
	n.Log.Info("order confirmation queued", zap.String("order_id", o.ID))
}

func (n *KafkaNotifier) LowStock(_ context.Context, productID string, available int) {
	n.publish(n.Stock, EventLowStock, productID, LowStockPayload{
		ProductID: productID,
		Available: available,
	})
}

// Nop satisfies Notifier where no broker is wired.
type Nop struct{}

func (Nop) OrderConfirmed(context.Context, order.Order) {}
func (Nop) LowStock(context.Context, string, int)       {}
