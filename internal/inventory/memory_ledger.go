package inventory

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps counters and reservations in process memory with one
// mutex per product, so contention on one product never stalls another.
// The registry lock only guards the maps, never a counter mutation.
type MemoryLedger struct {
	mu           sync.RWMutex
	products     map[string]*productState
	reservations map[string]*Reservation
}

type productState struct {
	mu     sync.Mutex
	record Record
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		products:     make(map[string]*productState),
		reservations: make(map[string]*Reservation),
	}
}

func (l *MemoryLedger) product(productID string) (*productState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.products[productID]
	return p, ok
}

func (l *MemoryLedger) ensureProduct(productID string) *productState {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[productID]
	if !ok {
		p = &productState{record: Record{ProductID: productID}}
		l.products[productID] = p
	}
	return p
}

func (l *MemoryLedger) Reserve(_ context.Context, productID string, qty int, reservationID, orderID string, ttl time.Duration) (Reservation, error) {
	p, ok := l.product(productID)
	if !ok {
		return Reservation{}, ErrProductNotFound
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if avail := p.record.Available(); avail < qty {
		return Reservation{}, &InsufficientError{ProductID: productID, Requested: qty, Available: avail}
	}
	p.record.Reserved += qty

	now := time.Now()
	res := Reservation{
		ID:        reservationID,
		OrderID:   orderID,
		ProductID: productID,
		Qty:       qty,
		Status:    ReservationActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	l.mu.Lock()
	l.reservations[reservationID] = &res
	l.mu.Unlock()
	return res, nil
}

// lockReservation returns the reservation and its product state with the
// product mutex held. Reservation status is guarded by the owning product's
// lock, which also serializes it against the expiry sweep.
func (l *MemoryLedger) lockReservation(reservationID string) (*Reservation, *productState, error) {
	l.mu.RLock()
	res, ok := l.reservations[reservationID]
	if !ok {
		l.mu.RUnlock()
		return nil, nil, ErrReservationNotFound
	}
	p := l.products[res.ProductID]
	l.mu.RUnlock()

	p.mu.Lock()
	return res, p, nil
}

func (l *MemoryLedger) Release(_ context.Context, reservationID string) error {
	res, p, err := l.lockReservation(reservationID)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	if res.Status != ReservationActive {
		return nil // already terminal, idempotent
	}
	p.record.Reserved -= res.Qty
	res.Status = ReservationReleased
	return nil
}

func (l *MemoryLedger) Commit(_ context.Context, reservationID string) error {
	res, p, err := l.lockReservation(reservationID)
	if err != nil {
		return err
	}
	defer p.mu.Unlock()

	switch res.Status {
	case ReservationCommitted:
		return nil // idempotent
	case ReservationReleased:
		return ErrInvalidState
	}
	p.record.Reserved -= res.Qty
	p.record.Committed += res.Qty
	res.Status = ReservationCommitted
	return nil
}

func (l *MemoryLedger) Restock(_ context.Context, productID string, delta int) error {
	p := l.ensureProduct(productID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if delta < 0 && p.record.Available()+delta < 0 {
		return &InsufficientError{ProductID: productID, Requested: -delta, Available: p.record.Available()}
	}
	p.record.TotalStock += delta
	return nil
}

func (l *MemoryLedger) SetStock(_ context.Context, productID string, total int) error {
	p := l.ensureProduct(productID)
	p.mu.Lock()
	defer p.mu.Unlock()

	if total < p.record.Reserved+p.record.Committed {
		return &InsufficientError{
			ProductID: productID,
			Requested: total,
			Available: p.record.Reserved + p.record.Committed,
		}
	}
	p.record.TotalStock = total
	return nil
}

func (l *MemoryLedger) Stock(_ context.Context, productID string) (Record, error) {
	p, ok := l.product(productID)
	if !ok {
		return Record{}, ErrProductNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record, nil
}

func (l *MemoryLedger) Reservation(_ context.Context, reservationID string) (Reservation, error) {
	l.mu.RLock()
	res, ok := l.reservations[reservationID]
	if !ok {
		l.mu.RUnlock()
		return Reservation{}, ErrReservationNotFound
	}
	p := l.products[res.ProductID]
	l.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	return *res, nil
}

func (l *MemoryLedger) ReleaseExpired(ctx context.Context, now time.Time) ([]Reservation, error) {
	// ExpiresAt is immutable, so the scan needs no product locks. Status
	// is only trusted once the product lock is held below.
	l.mu.RLock()
	due := make([]string, 0)
	for id, res := range l.reservations {
		if res.ExpiresAt.Before(now) {
			due = append(due, id)
		}
	}
	l.mu.RUnlock()

	var released []Reservation
	for _, id := range due {
		res, p, err := l.lockReservation(id)
		if err != nil {
			continue
		}
		// commit may have won the race after the scan
		if res.Status == ReservationActive && res.ExpiresAt.Before(now) {
			p.record.Reserved -= res.Qty
			res.Status = ReservationReleased
			released = append(released, *res)
		}
		p.mu.Unlock()
	}
	return released, nil
}
