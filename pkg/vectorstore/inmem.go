package vectorstore

import (
	"context"
	"sort"
	"sync"

	"github.com/recalld/recalld/pkg/similarity"
)

// InMem is a brute-force in-memory vector store. It serves tests and
// single-process deployments; larger corpora belong on the Redis backend.
type InMem struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Record
}

// NewInMem creates an empty in-memory store.
func NewInMem() *InMem {
	return &InMem{collections: make(map[string]map[string]*Record)}
}

func (s *InMem) collection(name string) map[string]*Record {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*Record)
		s.collections[name] = c
	}
	return c
}

// Insert stores deep copies of the records.
func (s *InMem) Insert(ctx context.Context, collection string, recs ...*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collection(collection)
	for _, r := range recs {
		if err := r.prepare(); err != nil {
			return err
		}
		c[r.ID] = r.Clone()
	}
	return nil
}

// Search scans the collection and ranks by cosine similarity.
func (s *InMem) Search(ctx context.Context, collection string, vector []float32, f Filter, topK int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []Match
	for _, r := range s.collections[collection] {
		if !f.admits(r) {
			continue
		}
		sim := similarity.Cosine(vector, r.Vector)
		if sim < f.MinSimilarity {
			continue
		}
		matches = append(matches, Match{Record: r.Clone(), Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes records by ID.
func (s *InMem) Delete(ctx context.Context, collection string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.collections[collection]
	for _, id := range ids {
		delete(c, id)
	}
	return nil
}

// DeleteByMemoryID removes every record for a memory.
func (s *InMem) DeleteByMemoryID(ctx context.Context, collection, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.collections[collection] {
		if r.MemoryID == memoryID {
			delete(s.collections[collection], id)
		}
	}
	return nil
}

// Len reports how many records a collection holds.
func (s *InMem) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close is a no-op.
func (s *InMem) Close() error { return nil }
