package ledger

import (
	"context"
	"sort"
	"sync"

	"tenantgate/pkg/models"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.CostEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, e models.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Compensates != nil {
		for _, existing := range s.entries {
			if existing.Compensates != nil && *existing.Compensates == *e.Compensates {
				return ErrAlreadyCompensated
			}
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.CostEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			c := e
			return &c, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]models.CostEntry, error) {
	s.mu.RLock()
	out := make([]models.CostEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) Truncate(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.entries))
	s.entries = nil
	return n, nil
}
