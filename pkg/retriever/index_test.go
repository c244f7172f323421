package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/vectorstore"
)

func indexRecord(id, memoryID string, vec []float32) *vectorstore.Record {
	return &vectorstore.Record{
		ID: id, UserID: "u1", MemoryID: memoryID, Tier: event.TierAssociative,
		Content: "indexed " + memoryID, Vector: vec,
		Importance: 0.5, LastAccessedAt: time.Now().UnixMilli(),
	}
}

func TestIndexQueryFanOutMergesInPhraseOrder(t *testing.T) {
	now := time.Now().UnixMilli()
	store := vectorstore.NewInMem()
	ctx := context.Background()

	// Phrase "lunch" matches m1 and m2; phrase "park" matches m2 and m3.
	// m2 must appear once, in the position its first phrase gave it.
	emb := &mapEmbedder{
		vectors: map[string][]float32{
			"lunch": {1, 0, 0},
			"park":  {0, 1, 0},
		},
		deflt: []float32{0, 0, 1},
	}
	records := []*vectorstore.Record{
		indexRecord("a", "m1", []float32{1, 0, 0}),
		indexRecord("b", "m2", []float32{0.7, 0.7, 0}),
		indexRecord("c", "m3", []float32{0, 1, 0}),
	}
	if err := store.Insert(ctx, event.IndexCollection, records...); err != nil {
		t.Fatal(err)
	}

	inner := newRetriever(t, store, emb, Config{ScoreThreshold: 0.3}, now)
	ir := NewIndexRetriever(inner, emb)

	got, err := ir.Query(ctx, "u1", []string{"lunch", "park"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	ids := MemoryIDs(got)
	if len(ids) != 3 {
		t.Fatalf("want 3 distinct memories, got %v", ids)
	}
	seen := make(map[string]int)
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("memory %s returned twice: %v", id, ids)
		}
		seen[id] = i
	}
	// "lunch" results come first, so m1 precedes m3.
	if seen["m1"] > seen["m3"] {
		t.Errorf("phrase order not preserved: %v", ids)
	}
}

func TestIndexQueryNoPhrases(t *testing.T) {
	store := vectorstore.NewInMem()
	emb := &mapEmbedder{deflt: []float32{1, 0}}
	inner := newRetriever(t, store, emb, Config{}, time.Now().UnixMilli())
	ir := NewIndexRetriever(inner, emb)

	got, err := ir.Query(context.Background(), "u1", nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("no phrases should yield no results, got %v", got)
	}
}

func TestIndexQueryDoesNotTouch(t *testing.T) {
	now := time.Now().UnixMilli()
	store := vectorstore.NewInMem()
	ctx := context.Background()
	emb := &mapEmbedder{deflt: []float32{1, 0}}

	old := now - 50*time.Hour.Milliseconds()
	rec := indexRecord("a", "m1", []float32{1, 0})
	rec.LastAccessedAt = old
	if err := store.Insert(ctx, event.IndexCollection, rec); err != nil {
		t.Fatal(err)
	}

	inner := newRetriever(t, store, emb, Config{}, now)
	ir := NewIndexRetriever(inner, emb)
	if _, err := ir.Query(ctx, "u1", []string{"anything"}, 5); err != nil {
		t.Fatal(err)
	}

	matches, err := store.Search(ctx, event.IndexCollection, []float32{1, 0}, vectorstore.Filter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Record.LastAccessedAt != old {
		t.Error("index queries must not refresh access time")
	}
}

func TestSortByContext(t *testing.T) {
	now := time.Now().UnixMilli()
	store := vectorstore.NewInMem()
	emb := &mapEmbedder{
		vectors: map[string][]float32{
			"talking about food": {1, 0},
			"indexed m-food":     {0.9, 0.1},
			"indexed m-vague":    {0.4, 0.6},
			"indexed m-offtopic": {0, 1},
		},
	}
	inner := newRetriever(t, store, emb, Config{}, now)
	ir := NewIndexRetriever(inner, emb)

	candidates := []*vectorstore.Record{
		{MemoryID: "m-offtopic", Content: "indexed m-offtopic"},
		{MemoryID: "m-food", Content: "indexed m-food"},
		{MemoryID: "m-vague", Content: "indexed m-vague"},
	}
	got, err := ir.SortByContext(context.Background(), "talking about food", candidates)
	if err != nil {
		t.Fatal(err)
	}
	ids := MemoryIDs(got)
	if len(ids) != 2 {
		t.Fatalf("off-topic candidate should be dropped, got %v", ids)
	}
	if ids[0] != "m-food" || ids[1] != "m-vague" {
		t.Errorf("want descending relevance [m-food m-vague], got %v", ids)
	}
}

func TestSortByContextEmpty(t *testing.T) {
	emb := &mapEmbedder{deflt: []float32{1, 0}}
	inner := newRetriever(t, vectorstore.NewInMem(), emb, Config{}, time.Now().UnixMilli())
	ir := NewIndexRetriever(inner, emb)
	got, err := ir.SortByContext(context.Background(), "ctx", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("empty candidates should yield nil, got %v", got)
	}
}
