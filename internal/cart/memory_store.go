package cart

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Line
	avail Availability
}

func NewMemoryStore(avail Availability) *MemoryStore {
	return &MemoryStore{carts: make(map[string][]Line), avail: avail}
}

func (s *MemoryStore) snapshot(identity string) Cart {
	lines := make([]Line, len(s.carts[identity]))
	copy(lines, s.carts[identity])
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ProductID != lines[j].ProductID {
			return lines[i].ProductID < lines[j].ProductID
		}
		return lines[i].VariantID < lines[j].VariantID
	})
	return Cart{Identity: identity, Lines: lines, UpdatedAt: time.Now()}
}

func (s *MemoryStore) Get(_ context.Context, identity string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(identity), nil
}

func (s *MemoryStore) AddItem(_ context.Context, identity, productID, variantID string, qty int) (Cart, error) {
	if productID == "" || qty < 1 {
		return Cart{}, fmt.Errorf("%w: add requires product and qty >= 1", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[identity]
	for i, l := range lines {
		if l.ProductID == productID && l.VariantID == variantID {
			lines[i].Qty += qty
			return s.snapshot(identity), nil
		}
	}
	s.carts[identity] = append(lines, Line{ProductID: productID, VariantID: variantID, Qty: qty})
	return s.snapshot(identity), nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, identity, productID, variantID string, qty int) (Cart, error) {
	if qty < 1 {
		return Cart{}, fmt.Errorf("%w: qty must be >= 1, remove the line instead", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[identity]
	for i, l := range lines {
		if l.ProductID == productID && l.VariantID == variantID {
			lines[i].Qty = qty
			return s.snapshot(identity), nil
		}
	}
	return Cart{}, fmt.Errorf("%w: line %s/%s", ErrNotFound, productID, variantID)
}

func (s *MemoryStore) RemoveItem(_ context.Context, identity, productID, variantID string) (Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := s.carts[identity]
	for i, l := range lines {
		if l.ProductID == productID && l.VariantID == variantID {
			s.carts[identity] = append(lines[:i], lines[i+1:]...)
			return s.snapshot(identity), nil
		}
	}
	return Cart{}, fmt.Errorf("%w: line %s/%s", ErrNotFound, productID, variantID)
}

func (s *MemoryStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, identity)
	return nil
}

func (s *MemoryStore) MergeGuestCart(ctx context.Context, guestToken, userIdentity string) (Cart, error) {
	if guestToken == "" || userIdentity == "" || guestToken == userIdentity {
		return Cart{}, fmt.Errorf("%w: merge needs distinct guest and user identities", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Line, len(s.carts[userIdentity]))
	copy(merged, s.carts[userIdentity])

	for _, g := range s.carts[guestToken] {
		found := false
		for i, u := range merged {
			if u.ProductID == g.ProductID && u.VariantID == g.VariantID {
				merged[i].Qty += g.Qty
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, g)
		}
	}

	// Clamp each line to what is available right now. This is a read-only
	// check; nothing is reserved until checkout. Lines clamped below one
	// unit are dropped.
	kept := merged[:0]
	for _, l := range merged {
		avail, err := s.avail(ctx, l.ProductID)
		if err != nil {
			return Cart{}, fmt.Errorf("availability for %s: %w", l.ProductID, err)
		}
		if l.Qty > avail {
			l.Qty = avail
		}
		if l.Qty >= 1 {
			kept = append(kept, l)
		}
	}

	s.carts[userIdentity] = kept
	delete(s.carts, guestToken)
	return s.snapshot(userIdentity), nil
}
