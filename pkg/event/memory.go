package event

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory event store for tests and single-process use.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event
	byID   map[string]*Event
	active map[string]int64
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Event),
		active: make(map[string]int64),
	}
}

// Append stores a copy of the event.
func (s *MemoryStore) Append(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.MemoryID == "" {
		if e.CreatedAt == 0 {
			e.CreatedAt = Now()
		}
		e.MemoryID = NewID(e.UserID, e.CreatedAt)
	}
	cp := *e
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &cp)
	s.byID[cp.MemoryID] = &cp
	if cp.CreatedAt > s.active[cp.UserID] {
		s.active[cp.UserID] = cp.CreatedAt
	}
	return nil
}

// ByDuration filters held events, keeping the most recent limit, ascending.
func (s *MemoryStore) ByDuration(ctx context.Context, userID string, tier Tier, start, end int64, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events {
		if e.UserID != userID || e.Tier != tier {
			continue
		}
		if e.StartTime < start || e.EndTime > end {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime != out[j].EndTime {
			return out[i].EndTime < out[j].EndTime
		}
		return out[i].StartTime < out[j].StartTime
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ByIDs resolves IDs preserving input order; unknown IDs are skipped.
func (s *MemoryStore) ByIDs(ctx context.Context, ids []string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Event, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ActiveUsers returns users whose latest write is at or after since.
func (s *MemoryStore) ActiveUsers(ctx context.Context, since int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []string
	for u, last := range s.active {
		if last >= since {
			users = append(users, u)
		}
	}
	sort.Strings(users)
	return users, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
