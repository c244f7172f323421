package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	ev:{user}:{tier:02d}:{end_time:020d}:{memory_id} -> event JSON
//	id:{memory_id}                                   -> primary key
//	act:{user}                                       -> last write timestamp
//
// End time is zero-padded so lexicographic order is chronological order,
// letting ByDuration walk a prefix in either direction. The primary key
// includes end_time, which gives (user, tier, end_time) a natural unique
// slot: a duplicate roll-up commit lands on the same key.
const (
	eventKeyPrefix  = "ev:"
	idKeyPrefix     = "id:"
	activeKeyPrefix = "act:"
)

// BadgerConfig holds configuration for the Badger event store.
type BadgerConfig struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// BadgerStore is a Badger-backed durable event store.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

// OpenBadgerStore opens (or creates) a Badger event store at the configured
// path. The returned store owns the DB and closes it on Close.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = cfg.NumVersionsToKeep
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("event: open badger at %s: %w", cfg.Path, err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStore wraps an externally managed Badger DB.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func eventKey(userID string, tier Tier, endTime int64, memoryID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%02d:%020d:%s", eventKeyPrefix, userID, tier, endTime, memoryID))
}

func tierPrefix(userID string, tier Tier) []byte {
	return []byte(fmt.Sprintf("%s%s:%02d:", eventKeyPrefix, userID, tier))
}

func idKey(memoryID string) []byte {
	return []byte(idKeyPrefix + memoryID)
}

func activeKey(userID string) []byte {
	return []byte(activeKeyPrefix + userID)
}

// Append persists an event with its secondary keys in one transaction.
func (s *BadgerStore) Append(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.MemoryID == "" {
		if e.CreatedAt == 0 {
			e.CreatedAt = Now()
		}
		e.MemoryID = NewID(e.UserID, e.CreatedAt)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("event: marshal: %w", err)
	}
	key := eventKey(e.UserID, e.Tier, e.EndTime, e.MemoryID)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(idKey(e.MemoryID), key); err != nil {
			return err
		}
		return txn.Set(activeKey(e.UserID), []byte(strconv.FormatInt(e.CreatedAt, 10)))
	})
}

// ByDuration walks the (user, tier) prefix in reverse chronological order,
// keeps events whose span lies inside [start, end], truncates to limit, and
// returns the result in ascending order.
func (s *BadgerStore) ByDuration(ctx context.Context, userID string, tier Tier, start, end int64, limit int) ([]*Event, error) {
	var out []*Event
	prefix := tierPrefix(userID, tier)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the end of the prefix range.
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var e Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if e.EndTime > end {
				continue
			}
			if e.StartTime < start {
				// Keys are ordered by end time; events starting before
				// the range can still appear, so filter rather than stop.
				continue
			}
			out = append(out, &e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event: by duration %s/%s: %w", userID, tier, err)
	}
	// Collected newest-first; callers process oldest-first.
	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime != out[j].EndTime {
			return out[i].EndTime < out[j].EndTime
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

// ByIDs resolves memory IDs through the id index, preserving input order.
func (s *BadgerStore) ByIDs(ctx context.Context, ids []string) ([]*Event, error) {
	out := make([]*Event, 0, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(idKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var primary []byte
			if err := item.Value(func(val []byte) error {
				primary = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}
			pitem, err := txn.Get(primary)
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var e Event
			if err := pitem.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event: by ids: %w", err)
	}
	return out, nil
}

// ActiveUsers scans the activity index for users written to since the
// given timestamp.
func (s *BadgerStore) ActiveUsers(ctx context.Context, since int64) ([]string, error) {
	var users []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(activeKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var last int64
			if err := item.Value(func(val []byte) error {
				v, err := strconv.ParseInt(string(val), 10, 64)
				last = v
				return err
			}); err != nil {
				return err
			}
			if last < since {
				continue
			}
			users = append(users, strings.TrimPrefix(string(item.Key()), activeKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event: active users: %w", err)
	}
	sort.Strings(users)
	return users, nil
}

// Close closes the underlying DB when this store owns it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
