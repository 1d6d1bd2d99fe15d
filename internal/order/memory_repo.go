package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrAlreadyExists = errors.New("order already exists")

type MemoryRepo struct {
	mu     sync.Mutex
	orders map[string]*Order
	byRef  map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		orders: make(map[string]*Order),
		byRef:  make(map[string]string),
	}
}

func (r *MemoryRepo) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return ErrAlreadyExists
	}
	cp := o
	r.orders[o.ID] = &cp
	if o.PaymentSessionRef != "" {
		r.byRef[o.PaymentSessionRef] = o.ID
	}
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *o, nil
}

func (r *MemoryRepo) GetByPaymentRef(_ context.Context, sessionRef string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[sessionRef]
	if !ok {
		return Order{}, ErrNotFound
	}
	return *r.orders[id], nil
}

func (r *MemoryRepo) SetPaymentRef(_ context.Context, id, sessionRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.PaymentSessionRef = sessionRef
	o.UpdatedAt = time.Now()
	r.byRef[sessionRef] = id
	return nil
}

func (r *MemoryRepo) UpdateStatus(_ context.Context, id string, from, to Status, tracking string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrConflict
	}
	now := time.Now()
	o.Status = to
	o.UpdatedAt = now
	if tracking != "" {
		o.TrackingNumber = tracking
	}
	switch to {
	case StatusProcessing:
		o.PaidAt = &now
	case StatusCancelled:
		o.CancelledAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusRefunded:
		o.RefundedAt = &now
	}
	return nil
}

func (r *MemoryRepo) MarkRestocked(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Restocked = true
	return nil
}

func (r *MemoryRepo) ListPendingBefore(_ context.Context, cutoff time.Time) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.Status == StatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
