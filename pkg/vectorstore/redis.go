package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/recalld/recalld/pkg/event"
	"github.com/recalld/recalld/pkg/similarity"
)

// Redis key layout, under a configurable prefix:
//
//	{p}:{collection}:rec:{id}        hash with record fields
//	{p}:{collection}:ids             set of record IDs
//	{p}:{collection}:user:{user}     set of record IDs for one user
//	{p}:{collection}:mem:{memoryID}  set of record IDs for one memory
//
// Similarity is computed client-side over the candidate set; the per-user
// set keeps the scan proportional to one user's records.

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore is a Store backed by Redis hashes.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	closer func() error
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: redis ping %s: %w", cfg.Addr, err)
	}
	return &RedisStore{
		client: client,
		prefix: keyPrefix(cfg.KeyPrefix),
		closer: client.Close,
	}, nil
}

// NewRedisStoreFromClient wraps an externally managed client.
func NewRedisStoreFromClient(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: keyPrefix(prefix)}
}

func keyPrefix(p string) string {
	if p == "" {
		return "recalld:vec"
	}
	return p
}

func (s *RedisStore) recKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:rec:%s", s.prefix, collection, id)
}

func (s *RedisStore) idsKey(collection string) string {
	return fmt.Sprintf("%s:%s:ids", s.prefix, collection)
}

func (s *RedisStore) userKey(collection, userID string) string {
	return fmt.Sprintf("%s:%s:user:%s", s.prefix, collection, userID)
}

func (s *RedisStore) memKey(collection, memoryID string) string {
	return fmt.Sprintf("%s:%s:mem:%s", s.prefix, collection, memoryID)
}

// Insert writes the records and their index sets in one pipeline.
func (s *RedisStore) Insert(ctx context.Context, collection string, recs ...*Record) error {
	pipe := s.client.TxPipeline()
	for _, r := range recs {
		if err := r.prepare(); err != nil {
			return err
		}
		vec, err := json.Marshal(r.Vector)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal vector: %w", err)
		}
		pipe.HSet(ctx, s.recKey(collection, r.ID), map[string]any{
			"user_id":          r.UserID,
			"memory_id":        r.MemoryID,
			"tier":             int(r.Tier),
			"start_time":       r.StartTime,
			"end_time":         r.EndTime,
			"importance":       r.Importance,
			"last_accessed_at": r.LastAccessedAt,
			"content":          r.Content,
			"vector":           vec,
		})
		pipe.SAdd(ctx, s.idsKey(collection), r.ID)
		pipe.SAdd(ctx, s.userKey(collection, r.UserID), r.ID)
		if r.MemoryID != "" {
			pipe.SAdd(ctx, s.memKey(collection, r.MemoryID), r.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("vectorstore: redis insert: %w", err)
	}
	return nil
}

// Search loads the candidate set and ranks client-side.
func (s *RedisStore) Search(ctx context.Context, collection string, vector []float32, f Filter, topK int) ([]Match, error) {
	scanKey := s.idsKey(collection)
	if f.UserID != "" {
		scanKey = s.userKey(collection, f.UserID)
	}
	ids, err := s.client.SMembers(ctx, scanKey).Result()
	if err != nil {
		return nil, fmt.Errorf("vectorstore: redis search: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recKey(collection, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("vectorstore: redis search: %w", err)
	}

	var matches []Match
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		r, err := recordFromFields(ids[i], fields)
		if err != nil {
			return nil, err
		}
		if !f.admits(r) {
			continue
		}
		sim := similarity.Cosine(vector, r.Vector)
		if sim < f.MinSimilarity {
			continue
		}
		matches = append(matches, Match{Record: r, Similarity: sim})
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes records and their index-set entries.
func (s *RedisStore) Delete(ctx context.Context, collection string, ids ...string) error {
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, s.recKey(collection, id)).Result()
		if err != nil {
			return fmt.Errorf("vectorstore: redis delete: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.recKey(collection, id))
		pipe.SRem(ctx, s.idsKey(collection), id)
		pipe.SRem(ctx, s.userKey(collection, fields["user_id"]), id)
		if mem := fields["memory_id"]; mem != "" {
			pipe.SRem(ctx, s.memKey(collection, mem), id)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("vectorstore: redis delete: %w", err)
		}
	}
	return nil
}

// DeleteByMemoryID removes every record projected from a memory.
func (s *RedisStore) DeleteByMemoryID(ctx context.Context, collection, memoryID string) error {
	ids, err := s.client.SMembers(ctx, s.memKey(collection, memoryID)).Result()
	if err != nil {
		return fmt.Errorf("vectorstore: redis delete by memory: %w", err)
	}
	return s.Delete(ctx, collection, ids...)
}

// Close closes the connection when this store owns it.
func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func recordFromFields(id string, fields map[string]string) (*Record, error) {
	r := &Record{
		ID:       id,
		UserID:   fields["user_id"],
		MemoryID: fields["memory_id"],
		Content:  fields["content"],
	}
	var err error
	parse := func(key string) int64 {
		if err != nil {
			return 0
		}
		if fields[key] == "" {
			return 0
		}
		var v int64
		v, err = strconv.ParseInt(fields[key], 10, 64)
		return v
	}
	r.Tier = event.Tier(parse("tier"))
	r.StartTime = parse("start_time")
	r.EndTime = parse("end_time")
	r.LastAccessedAt = parse("last_accessed_at")
	if err != nil {
		return nil, fmt.Errorf("vectorstore: record %s: %w", id, err)
	}
	if fields["importance"] != "" {
		if r.Importance, err = strconv.ParseFloat(fields["importance"], 64); err != nil {
			return nil, fmt.Errorf("vectorstore: record %s: %w", id, err)
		}
	}
	if err := json.Unmarshal([]byte(fields["vector"]), &r.Vector); err != nil {
		return nil, fmt.Errorf("vectorstore: record %s vector: %w", id, err)
	}
	return r, nil
}
