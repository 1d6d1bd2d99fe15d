package payment

import (
	"context"
	"sync"
)

type MemoryEventStore struct {
	mu     sync.Mutex
	events map[string]*Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{events: make(map[string]*Event)}
}

func (s *MemoryEventStore) Insert(_ context.Context, ev Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ExternalEventID]; ok {
		return false, nil
	}
	cp := ev
	cp.Processed = false
	s.events[ev.ExternalEventID] = &cp
	return true, nil
}

func (s *MemoryEventStore) Get(_ context.Context, externalEventID string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[externalEventID]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return *ev, nil
}

func (s *MemoryEventStore) MarkProcessed(_ context.Context, externalEventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[externalEventID]
	if !ok {
		return ErrEventNotFound
	}
	ev.Processed = true
	return nil
}
