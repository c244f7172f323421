package retriever

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/llm"
	"github.com/recalld/recalld/pkg/similarity"
	"github.com/recalld/recalld/pkg/vectorstore"
)

// contextRelevanceThreshold gates the optional context re-rank; candidates
// scoring at or below it against the conversational context are dropped.
const contextRelevanceThreshold = 0.3

// IndexRetriever answers compound queries by fanning one sub-query per
// index phrase across the memory index collection.
type IndexRetriever struct {
	inner    *TimeWeighted
	embedder llm.Embedder
}

// NewIndexRetriever builds an index retriever sharing the time-weighted
// retriever's store and scoring.
func NewIndexRetriever(inner *TimeWeighted, embedder llm.Embedder) *IndexRetriever {
	return &IndexRetriever{inner: inner, embedder: embedder}
}

// Query runs one sub-query per phrase concurrently, waits for all, and
// merges results by de-duplicating on memory ID. The first occurrence
// wins, preserving phrase order, so earlier phrases take precedence.
func (r *IndexRetriever) Query(ctx context.Context, userID string, phrases []string, perPhrase int) ([]*vectorstore.Record, error) {
	if len(phrases) == 0 {
		return nil, nil
	}
	results := make([][]Scored, len(phrases))
	errs := make([]error, len(phrases))
	var wg sync.WaitGroup
	for i, phrase := range phrases {
		wg.Add(1)
		go func(i int, phrase string) {
			defer wg.Done()
			// Index hits are not touched; recency refresh belongs to the
			// primary memory collections.
			results[i], errs[i] = r.inner.Query(ctx, event.IndexCollection, userID, phrase, perPhrase, false)
		}(i, phrase)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("retriever: phrase %q: %w", phrases[i], err)
		}
	}

	seen := make(map[string]bool)
	var merged []*vectorstore.Record
	for _, phraseResults := range results {
		for _, res := range phraseResults {
			if seen[res.Record.MemoryID] {
				continue
			}
			seen[res.Record.MemoryID] = true
			merged = append(merged, res.Record)
		}
	}
	return merged, nil
}

// SortByContext re-ranks candidates against the current conversational
// context: embed the context and the candidate contents, take dot products,
// and keep the subset above the relevance threshold in descending order.
func (r *IndexRetriever) SortByContext(ctx context.Context, contextText string, candidates []*vectorstore.Record) ([]*vectorstore.Record, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, contextText)
	for _, c := range candidates {
		texts = append(texts, c.Content)
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed context: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("retriever: embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	type ranked struct {
		rec   *vectorstore.Record
		score float64
	}
	var kept []ranked
	for i, c := range candidates {
		score := similarity.Cosine(vecs[0], vecs[i+1])
		if score <= contextRelevanceThreshold {
			continue
		}
		kept = append(kept, ranked{rec: c, score: score})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score > kept[j].score })

	out := make([]*vectorstore.Record, len(kept))
	for i, k := range kept {
		out[i] = k.rec
	}
	return out, nil
}

// MemoryIDs projects records to their memory IDs, preserving order.
func MemoryIDs(recs []*vectorstore.Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.MemoryID
	}
	return ids
}
