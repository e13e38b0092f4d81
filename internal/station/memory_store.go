package station

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu    sync.RWMutex
	agg   *Aggregate
	saves int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a copy of agg.
func (s *MemoryStore) Save(_ context.Context, agg *Aggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agg = cloneAggregate(agg)
	s.saves++
	return nil
}

// Load returns a copy of the stored snapshot.
func (s *MemoryStore) Load(_ context.Context) (*Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.agg == nil {
		return nil, ErrNoSnapshot
	}
	return cloneAggregate(s.agg), nil
}

// Saves returns how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func cloneAggregate(agg *Aggregate) *Aggregate {
	if agg == nil {
		return nil
	}
	out := &Aggregate{
		LastChecked: agg.LastChecked,
		Results:     make([]Result, len(agg.Results)),
	}
	for i, r := range agg.Results {
		c := r
		if r.Ping != nil {
			ping := *r.Ping
			c.Ping = &ping
		}
		c.Frequencies = append([]float64{}, r.Frequencies...)
		out.Results[i] = c
	}
	return out
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)
