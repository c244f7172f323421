package event

import (
	"context"
	"fmt"
	"testing"
)

// runStoreTests exercises the Store contract against any backend.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("AppendAssignsID", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := &Event{UserID: "u1", Tier: TierSnapshot, StartTime: 1000, EndTime: 1000, Content: "woke up"}
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
		if e.MemoryID == "" {
			t.Error("append should assign a memory id")
		}
		if e.CreatedAt == 0 {
			t.Error("append should stamp created_at")
		}
	})

	t.Run("ByDurationOrderAndBounds", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		// Insert out of order to check the store sorts by end time.
		for _, end := range []int64{3000, 1000, 5000, 2000, 4000} {
			e := &Event{
				UserID:    "u1",
				Tier:      TierMinute,
				StartTime: end - 500,
				EndTime:   end,
				Content:   fmt.Sprintf("minute ending %d", end),
			}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		got, err := s.ByDuration(ctx, "u1", TierMinute, 0, 3500, 0)
		if err != nil {
			t.Fatalf("by duration: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("want 3 events in window, got %d", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i-1].EndTime > got[i].EndTime {
				t.Errorf("events not ascending: %d before %d", got[i-1].EndTime, got[i].EndTime)
			}
		}
	})

	t.Run("ByDurationLimitKeepsNewest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, end := range []int64{1000, 2000, 3000} {
			e := &Event{UserID: "u1", Tier: TierMinute, StartTime: end - 500, EndTime: end, Content: "m"}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		got, err := s.ByDuration(ctx, "u1", TierMinute, 0, 10000, 2)
		if err != nil {
			t.Fatalf("by duration: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("want 2, got %d", len(got))
		}
		if got[0].EndTime != 2000 || got[1].EndTime != 3000 {
			t.Errorf("limit should keep the newest, got ends %d, %d", got[0].EndTime, got[1].EndTime)
		}
	})

	t.Run("ByDurationIsolatesUserAndTier", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		events := []*Event{
			{UserID: "u1", Tier: TierMinute, StartTime: 500, EndTime: 1000, Content: "mine"},
			{UserID: "u2", Tier: TierMinute, StartTime: 500, EndTime: 1000, Content: "other user"},
			{UserID: "u1", Tier: TierHour, StartTime: 500, EndTime: 1000, Content: "other tier"},
		}
		for _, e := range events {
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		got, err := s.ByDuration(ctx, "u1", TierMinute, 0, 2000, 0)
		if err != nil {
			t.Fatalf("by duration: %v", err)
		}
		if len(got) != 1 || got[0].Content != "mine" {
			t.Errorf("expected only u1 minute events, got %+v", got)
		}
	})

	t.Run("ByIDsPreservesOrderSkipsUnknown", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		var ids []string
		for i := 0; i < 3; i++ {
			e := &Event{
				UserID:    "u1",
				Tier:      TierDay,
				StartTime: int64(i * 1000),
				EndTime:   int64(i*1000 + 500),
				Content:   fmt.Sprintf("day %d", i),
			}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
			ids = append(ids, e.MemoryID)
		}
		query := []string{ids[2], "missing", ids[0]}
		got, err := s.ByIDs(ctx, query)
		if err != nil {
			t.Fatalf("by ids: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("want 2, got %d", len(got))
		}
		if got[0].MemoryID != ids[2] || got[1].MemoryID != ids[0] {
			t.Errorf("order not preserved: %s, %s", got[0].MemoryID, got[1].MemoryID)
		}
	})

	t.Run("ActiveUsers", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		old := &Event{UserID: "stale", Tier: TierSnapshot, StartTime: 10, EndTime: 10, Content: "x", CreatedAt: 100, MemoryID: NewID("stale", 100)}
		fresh := &Event{UserID: "fresh", Tier: TierSnapshot, StartTime: 10, EndTime: 10, Content: "y", CreatedAt: 9000, MemoryID: NewID("fresh", 9000)}
		if err := s.Append(ctx, old); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := s.Append(ctx, fresh); err != nil {
			t.Fatalf("append: %v", err)
		}
		got, err := s.ActiveUsers(ctx, 5000)
		if err != nil {
			t.Fatalf("active users: %v", err)
		}
		if len(got) != 1 || got[0] != "fresh" {
			t.Errorf("want [fresh], got %v", got)
		}
	})

	t.Run("LatestReturnsNewest", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, end := range []int64{1000, 2000} {
			e := &Event{UserID: "u1", Tier: TierHour, StartTime: end - 500, EndTime: end, Content: fmt.Sprintf("h%d", end)}
			if err := s.Append(ctx, e); err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		got, err := Latest(ctx, s, "u1", TierHour, 0, 10000)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if got == nil || got.EndTime != 2000 {
			t.Errorf("want newest event, got %+v", got)
		}

		none, err := Latest(ctx, s, "u1", TierDay, 0, 10000)
		if err != nil {
			t.Fatalf("latest empty: %v", err)
		}
		if none != nil {
			t.Errorf("want nil for empty window, got %+v", none)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestBadgerStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		s, err := OpenBadgerStore(BadgerConfig{
			Path:              t.TempDir(),
			SyncWrites:        false,
			ValueLogFileSize:  1 << 20,
			NumVersionsToKeep: 1,
		})
		if err != nil {
			t.Fatalf("open badger store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
