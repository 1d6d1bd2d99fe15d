package payment

import (
	"context"
	"errors"
	"time"
)

var ErrEventNotFound = errors.New("payment event not found")

type Outcome string

const (
	OutcomeSucceeded Outcome = "SUCCEEDED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeExpired   Outcome = "EXPIRED"
)

func ValidOutcome(o Outcome) bool {
	return o == OutcomeSucceeded || o == OutcomeFailed || o == OutcomeExpired
}

// Event is one webhook delivery from the processor. ExternalEventID is the
// idempotency key: delivery is at-least-once, effect is at-most-once.
type Event struct {
	ExternalEventID string    `json:"external_event_id"`
	SessionRef      string    `json:"session_ref"`
	Outcome         Outcome   `json:"outcome"`
	AmountCents     int       `json:"amount_cents"`
	ReceivedAt      time.Time `json:"received_at"`
	Processed       bool      `json:"processed"`
}

// EventStore persists webhook events so a restart cannot replay their
// effects.
type EventStore interface {
	// Insert records the event if its external id is new and reports
	// whether this call stored it. First writer wins.
	Insert(ctx context.Context, ev Event) (bool, error)
	Get(ctx context.Context, externalEventID string) (Event, error)
	MarkProcessed(ctx context.Context, externalEventID string) error
}
