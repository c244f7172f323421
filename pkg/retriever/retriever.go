// Package retriever ranks stored memories for recall. The time-weighted
// retriever combines recency decay, importance and vector similarity, and
// refreshes access time on retrieval so frequently recalled memories
// resist decay. The index retriever fans a compound query out across
// extracted index phrases.
package retriever

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/vectorstore"
)

var tracer = otel.Tracer("github.com/recalld/recalld/pkg/retriever")

// Metrics receives query instrumentation. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordRetrievalQuery(collection string)
	RecordRetrievalDuration(collection string, d time.Duration)
	ObserveRetrievalResults(collection string, count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordRetrievalQuery(string)                   {}
func (nopMetrics) RecordRetrievalDuration(string, time.Duration) {}
func (nopMetrics) ObserveRetrievalResults(string, int)           {}

// Config tunes the combined ranking score.
type Config struct {
	// DecayRate is the hourly decay applied to time since last access.
	DecayRate float64

	// ScoreThreshold filters candidates on raw vector similarity before
	// re-ranking.
	ScoreThreshold float64

	// TopK is the default result count when a query passes k <= 0.
	TopK int

	// Term weights, all defaulting to 1.
	DecayWeight      float64
	ImportanceWeight float64
	SimilarityWeight float64
}

func (c Config) withDefaults() Config {
	if c.DecayRate <= 0 {
		c.DecayRate = 0.01
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.DecayWeight == 0 {
		c.DecayWeight = 1
	}
	if c.ImportanceWeight == 0 {
		c.ImportanceWeight = 1
	}
	if c.SimilarityWeight == 0 {
		c.SimilarityWeight = 1
	}
	return c
}

// Scored is a ranked retrieval result. Similarity is the raw cosine score
// from the vector search; Score is the combined ranking value.
type Scored struct {
	Record     *vectorstore.Record
	Similarity float64
	Score      float64
}

// TimeWeighted retrieves memories ranked by recency, importance and
// similarity.
type TimeWeighted struct {
	store    vectorstore.Store
	embedder llm.Embedder
	cfg      Config
	metrics  Metrics
	now      func() int64
}

// NewTimeWeighted builds a retriever over the given store and embedder.
func NewTimeWeighted(store vectorstore.Store, embedder llm.Embedder, cfg Config) *TimeWeighted {
	return &TimeWeighted{
		store:    store,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		metrics:  nopMetrics{},
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// WithMetrics attaches a metrics sink to the retriever and returns it.
func (r *TimeWeighted) WithMetrics(m Metrics) *TimeWeighted {
	if m != nil {
		r.metrics = m
	}
	return r
}

// score computes the combined ranking value at query time. Importance on
// the record is already normalized to [0, 1], so it contributes directly.
func (r *TimeWeighted) score(rec *vectorstore.Record, sim float64, now int64) float64 {
	hours := float64(now-rec.LastAccessedAt) / float64(time.Hour.Milliseconds())
	if hours < 0 {
		hours = 0
	}
	decay := math.Pow(1-r.cfg.DecayRate, hours)
	return r.cfg.DecayWeight*decay +
		r.cfg.ImportanceWeight*rec.Importance +
		r.cfg.SimilarityWeight*sim
}

// Query embeds the text and returns the top k results by combined score.
// When touch is true the winners' access times are refreshed, implemented
// as delete-then-reinsert since the store has no update-in-place.
func (r *TimeWeighted) Query(ctx context.Context, collection, userID, text string, k int, touch bool) ([]Scored, error) {
	vec, err := llm.EmbedOne(ctx, r.embedder, text)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}
	return r.QueryVector(ctx, collection, userID, vec, k, touch)
}

// QueryVector is Query for a pre-computed embedding.
func (r *TimeWeighted) QueryVector(ctx context.Context, collection, userID string, vec []float32, k int, touch bool) ([]Scored, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}
	ctx, span := tracer.Start(ctx, "retriever.query",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("top_k", k),
		))
	defer span.End()
	r.metrics.RecordRetrievalQuery(collection)
	started := time.Now()
	defer func() { r.metrics.RecordRetrievalDuration(collection, time.Since(started)) }()
	// Two-stage filter: similarity recall first, combined re-rank second.
	// Recall fetches more than k so re-ranking has candidates to promote.
	matches, err := r.store.Search(ctx, collection, vec, vectorstore.Filter{
		UserID:        userID,
		MinSimilarity: r.cfg.ScoreThreshold,
	}, 4*k)
	if err != nil {
		return nil, fmt.Errorf("retriever: search %s: %w", collection, err)
	}

	now := r.now()
	scored := make([]Scored, len(matches))
	for i, m := range matches {
		scored[i] = Scored{
			Record:     m.Record,
			Similarity: m.Similarity,
			Score:      r.score(m.Record, m.Similarity, now),
		}
	}
	sortByScore(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	r.metrics.ObserveRetrievalResults(collection, len(scored))

	if touch {
		if err := r.touch(ctx, collection, scored, now); err != nil {
			return nil, err
		}
	}
	return scored, nil
}

// touch refreshes last_accessed_at on the returned records.
func (r *TimeWeighted) touch(ctx context.Context, collection string, results []Scored, now int64) error {
	for _, res := range results {
		if err := r.store.Delete(ctx, collection, res.Record.ID); err != nil {
			return fmt.Errorf("retriever: touch %s: %w", res.Record.ID, err)
		}
		rec := res.Record.Clone()
		rec.LastAccessedAt = now
		if err := r.store.Insert(ctx, collection, rec); err != nil {
			return fmt.Errorf("retriever: touch %s: %w", res.Record.ID, err)
		}
		res.Record.LastAccessedAt = now
	}
	return nil
}

// dedupeThreshold is the similarity above which a candidate insert is
// treated as a duplicate of an existing record.
const dedupeThreshold = 0.95

// Insert embeds the record's content and stores it. With checkExists set,
// a near-identical existing record suppresses the insert; the stored
// duplicate wins and the new record is dropped.
func (r *TimeWeighted) Insert(ctx context.Context, collection string, rec *vectorstore.Record, checkExists bool) (inserted bool, err error) {
	if len(rec.Vector) == 0 {
		rec.Vector, err = llm.EmbedOne(ctx, r.embedder, rec.Content)
		if err != nil {
			return false, fmt.Errorf("retriever: embed insert: %w", err)
		}
	}
	if checkExists {
		matches, err := r.store.Search(ctx, collection, rec.Vector, vectorstore.Filter{
			UserID:        rec.UserID,
			MinSimilarity: dedupeThreshold,
		}, 1)
		if err != nil {
			return false, fmt.Errorf("retriever: dedupe probe: %w", err)
		}
		if len(matches) > 0 {
			return false, nil
		}
	}
	if err := r.store.Insert(ctx, collection, rec); err != nil {
		return false, err
	}
	return true, nil
}

func sortByScore(s []Scored) {
	// Insertion sort keeps ties stable in recall order.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
