package event

import (
	"context"
)

// Store is the durable record of events keyed by user, tier and time.
//
// Writes are append-only per memory ID; committed events are never mutated.
// That property is what lets the roll-up scheduler run without locks.
type Store interface {
	// Append persists a new event. Appending an event whose
	// (user, tier, end_time, memory_id) key already exists overwrites the
	// identical record and is therefore a no-op in practice.
	Append(ctx context.Context, e *Event) error

	// ByDuration returns events for a user and tier whose span lies inside
	// [start, end], ascending by end time. When limit > 0 only the most
	// recent limit events are returned (still ascending); limit 0 means
	// unbounded.
	ByDuration(ctx context.Context, userID string, tier Tier, start, end int64, limit int) ([]*Event, error)

	// ByIDs resolves memory IDs to events, preserving the input order.
	// Unknown IDs are skipped.
	ByIDs(ctx context.Context, ids []string) ([]*Event, error)

	// ActiveUsers returns users with at least one event written since the
	// given timestamp.
	ActiveUsers(ctx context.Context, since int64) ([]string, error)

	Close() error
}

// Latest returns the most recent event for a user and tier within
// [start, end], or nil when the range is empty.
func Latest(ctx context.Context, s Store, userID string, tier Tier, start, end int64) (*Event, error) {
	res, err := s.ByDuration(ctx, userID, tier, start, end, 1)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return res[len(res)-1], nil
}
