// Package vectorstore stores embedded event content partitioned by
// collection and serves similarity search with score-threshold recall.
// Ranking beyond raw similarity belongs to the retriever; this layer only
// answers "which records look like this vector".
package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/recalld/recalld/pkg/event"
)

var (
	// ErrMissingVector is returned when a record is inserted without an
	// embedding.
	ErrMissingVector = errors.New("vectorstore: record has no vector")

	// ErrMissingUser is returned when a record is inserted without a user.
	ErrMissingUser = errors.New("vectorstore: record has no user")
)

// Record is a projection of an event into embedding space. A memory may own
// several records (one per index phrase), so records carry their own ID.
// LastAccessedAt is the only field that changes after insert, and only via
// delete-then-reinsert.
type Record struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	MemoryID       string     `json:"memory_id"`
	Tier           event.Tier `json:"tier"`
	StartTime      int64      `json:"start_time"`
	EndTime        int64      `json:"end_time"`
	Importance     float64    `json:"importance"`
	LastAccessedAt int64      `json:"last_accessed_at"`
	Content        string     `json:"content"`
	Vector         []float32  `json:"vector"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Vector = append([]float32(nil), r.Vector...)
	return &cp
}

func (r *Record) prepare() error {
	if len(r.Vector) == 0 {
		return ErrMissingVector
	}
	if r.UserID == "" {
		return ErrMissingUser
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.LastAccessedAt == 0 {
		r.LastAccessedAt = event.Now()
	}
	return nil
}

// Filter narrows a search before ranking. MinSimilarity is the raw cosine
// recall threshold; candidates below it never reach the caller.
type Filter struct {
	UserID        string
	MinSimilarity float64
	After         int64 // inclusive lower bound on EndTime, 0 = unbounded
	Before        int64 // inclusive upper bound on EndTime, 0 = unbounded
}

func (f Filter) admits(r *Record) bool {
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.After > 0 && r.EndTime < f.After {
		return false
	}
	if f.Before > 0 && r.EndTime > f.Before {
		return false
	}
	return true
}

// Match is a search hit with its raw cosine similarity to the query.
type Match struct {
	Record     *Record
	Similarity float64
}

// Store is a collection-partitioned vector store.
type Store interface {
	// Insert adds records to a collection, assigning IDs and access
	// timestamps where missing.
	Insert(ctx context.Context, collection string, recs ...*Record) error

	// Search returns up to topK records passing the filter, ordered by
	// descending cosine similarity to the query vector.
	Search(ctx context.Context, collection string, vector []float32, f Filter, topK int) ([]Match, error)

	// Delete removes records by record ID. Unknown IDs are ignored.
	Delete(ctx context.Context, collection string, ids ...string) error

	// DeleteByMemoryID removes every record projected from a memory.
	DeleteByMemoryID(ctx context.Context, collection, memoryID string) error

	Close() error
}
