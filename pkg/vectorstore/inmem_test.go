package vectorstore

import (
	"context"
	"testing"

	"github.com/recalld/recalld/pkg/event"
)

func rec(user, memory string, vec []float32) *Record {
	return &Record{
		UserID:   user,
		MemoryID: memory,
		Tier:     event.TierDay,
		Content:  "something happened",
		Vector:   vec,
	}
}

func TestInMemInsertAssignsIDAndAccessTime(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	r := rec("u1", "m1", []float32{1, 0})
	if err := s.Insert(ctx, "memory", r); err != nil {
		t.Fatal(err)
	}
	if r.ID == "" {
		t.Error("insert should assign an id")
	}
	if r.LastAccessedAt == 0 {
		t.Error("insert should stamp last_accessed_at")
	}
}

func TestInMemInsertRejectsBadRecords(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	if err := s.Insert(ctx, "memory", &Record{UserID: "u1"}); err != ErrMissingVector {
		t.Errorf("want ErrMissingVector, got %v", err)
	}
	if err := s.Insert(ctx, "memory", &Record{Vector: []float32{1}}); err != ErrMissingUser {
		t.Errorf("want ErrMissingUser, got %v", err)
	}
}

func TestInMemSearchRanksBySimilarity(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	exact := rec("u1", "m1", []float32{1, 0})
	close_ := rec("u1", "m2", []float32{0.9, 0.1})
	far := rec("u1", "m3", []float32{0, 1})
	if err := s.Insert(ctx, "memory", exact, close_, far); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Fatalf("want 3 matches, got %d", len(matches))
	}
	if matches[0].Record.MemoryID != "m1" || matches[1].Record.MemoryID != "m2" {
		t.Errorf("wrong order: %s, %s", matches[0].Record.MemoryID, matches[1].Record.MemoryID)
	}
	if matches[0].Similarity < matches[1].Similarity || matches[1].Similarity < matches[2].Similarity {
		t.Error("similarities not descending")
	}
}

func TestInMemSearchThresholdAndTopK(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	if err := s.Insert(ctx, "memory",
		rec("u1", "m1", []float32{1, 0}),
		rec("u1", "m2", []float32{0.9, 0.1}),
		rec("u1", "m3", []float32{0, 1}),
	); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1", MinSimilarity: 0.5}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Errorf("threshold should drop the orthogonal record, got %d matches", len(matches))
	}

	matches, err = s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1"}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Record.MemoryID != "m1" {
		t.Errorf("topK should keep the best match, got %+v", matches)
	}
}

func TestInMemSearchFiltersUserAndCollection(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	if err := s.Insert(ctx, "memory", rec("u1", "m1", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, "memory", rec("u2", "m2", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(ctx, "persona", rec("u1", "m3", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Record.MemoryID != "m1" {
		t.Errorf("want only u1's memory record, got %+v", matches)
	}
}

func TestInMemSearchTimeBounds(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	old := rec("u1", "m1", []float32{1, 0})
	old.EndTime = 1000
	fresh := rec("u1", "m2", []float32{1, 0})
	fresh.EndTime = 5000
	if err := s.Insert(ctx, "memory", old, fresh); err != nil {
		t.Fatal(err)
	}

	matches, err := s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1", After: 2000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Record.MemoryID != "m2" {
		t.Errorf("After bound should drop the old record, got %+v", matches)
	}

	matches, err = s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1", Before: 2000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Record.MemoryID != "m1" {
		t.Errorf("Before bound should drop the fresh record, got %+v", matches)
	}
}

func TestInMemDelete(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	r := rec("u1", "m1", []float32{1, 0})
	if err := s.Insert(ctx, "memory", r); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "memory", r.ID, "unknown-id"); err != nil {
		t.Fatal(err)
	}
	if s.Len("memory") != 0 {
		t.Error("record should be gone")
	}
}

func TestInMemDeleteByMemoryID(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	// Two index records for the same memory plus an unrelated one.
	a := rec("u1", "m1", []float32{1, 0})
	b := rec("u1", "m1", []float32{0, 1})
	other := rec("u1", "m2", []float32{1, 1})
	if err := s.Insert(ctx, "memory_index", a, b, other); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteByMemoryID(ctx, "memory_index", "m1"); err != nil {
		t.Fatal(err)
	}
	if s.Len("memory_index") != 1 {
		t.Errorf("only the unrelated record should remain, have %d", s.Len("memory_index"))
	}
}

func TestInMemInsertCopies(t *testing.T) {
	s := NewInMem()
	ctx := context.Background()
	r := rec("u1", "m1", []float32{1, 0})
	if err := s.Insert(ctx, "memory", r); err != nil {
		t.Fatal(err)
	}
	r.Content = "mutated after insert"
	r.Vector[0] = 0

	matches, err := s.Search(ctx, "memory", []float32{1, 0}, Filter{UserID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].Record.Content != "something happened" {
		t.Error("store should hold its own copy of inserted records")
	}
}
