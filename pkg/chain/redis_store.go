package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// insertScript draws a fresh value from the store's counter and adds the
// suffixed member to the context's set in one atomic server-side step.
// Without the script, two concurrent inserts could observe the same counter
// value and collide on the member string, silently dropping one occurrence.
var insertScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[2])
redis.call("SADD", KEYS[1], ARGV[1] .. ":" .. c)
return c
`)

// sampleAnyAttempts bounds how many RANDOMKEY probes SampleAny makes before
// reporting the store empty.
const sampleAnyAttempts = 8

// RedisStore records transitions in one Redis set per context. Redis has no
// weighted-multiset sampling primitive, so a token observed k times is
// stored as k distinct members, each tagged with a unique counter suffix;
// SRANDMEMBER's uniform member selection then reproduces weighted-by-count
// sampling. All keys live under a configurable namespace so several logical
// stores can share one backend.
type RedisStore struct {
	client    redis.UniversalClient
	order     int
	namespace string
	logger    *slog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithNamespace sets the key prefix for this store. Default: "chain".
func WithNamespace(ns string) RedisOption {
	return func(s *RedisStore) { s.namespace = ns }
}

// NewRedisStore creates a store for contexts of the given order on top of an
// existing Redis client. The client's lifetime stays with the caller.
func NewRedisStore(client redis.UniversalClient, order int, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		order:     order,
		namespace: "chain",
		logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the store. By default, all logs are discarded.
func (s *RedisStore) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Order returns the configured context window length.
func (s *RedisStore) Order() int { return s.order }

func (s *RedisStore) key(from Context) string {
	return s.namespace + ":" + from.Key()
}

// counterKey holds the store-wide monotonic counter. The "!" keeps it
// distinct from any context key, since the tokenizer never emits one.
func (s *RedisStore) counterKey() string {
	return s.namespace + ":!counter"
}

// Insert increases the occurrence count for (from, to) by one, in a single
// round trip.
func (s *RedisStore) Insert(ctx context.Context, from Context, to string) error {
	if err := checkOrder(s.order, from); err != nil {
		return err
	}
	keys := []string{s.key(from), s.counterKey()}
	if err := insertScript.Run(ctx, s.client, keys, to).Err(); err != nil {
		return fmt.Errorf("chain: redis insert failed: %w", err)
	}
	return nil
}

// InsertBatch records every token in tos as a transition from from.
func (s *RedisStore) InsertBatch(ctx context.Context, from Context, tos []string) error {
	for _, to := range tos {
		if err := s.Insert(ctx, from, to); err != nil {
			return err
		}
	}
	return nil
}

// Sample retrieves a uniform-random member of the context's set and strips
// its counter suffix. Because a token observed k times appears as k members,
// the result is weighted by count.
func (s *RedisStore) Sample(ctx context.Context, from Context) (string, error) {
	if err := checkOrder(s.order, from); err != nil {
		return "", err
	}
	member, err := s.client.SRandMember(ctx, s.key(from)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoTransitions
	}
	if err != nil {
		return "", fmt.Errorf("chain: redis sample failed: %w", err)
	}
	return stripCounter(member), nil
}

// SampleAny draws a uniform-random key from the backend's keyspace and
// recovers its context. This is only a faithful "arbitrary existing context"
// when the backend is not shared with unrelated keys; keys outside the
// store's namespace, and the counter key itself, are skipped with a bounded
// number of retries before the store is reported empty.
func (s *RedisStore) SampleAny(ctx context.Context) (Context, error) {
	prefix := s.namespace + ":"
	for range sampleAnyAttempts {
		key, err := s.client.RandomKey(ctx).Result()
		if errors.Is(err, redis.Nil) {
			return Context{}, ErrEmptyStore
		}
		if err != nil {
			return Context{}, fmt.Errorf("chain: redis random key failed: %w", err)
		}
		if key == s.counterKey() || !strings.HasPrefix(key, prefix) {
			s.logger.DebugContext(ctx, "skipping non-context key", slog.String("key", key))
			continue
		}
		return ParseKey(strings.TrimPrefix(key, prefix)), nil
	}
	return Context{}, ErrEmptyStore
}

// Weight counts the members of the context's set that carry the given token
// prefix, recovering the recorded occurrence count.
func (s *RedisStore) Weight(ctx context.Context, from Context, to string) (int, error) {
	if err := checkOrder(s.order, from); err != nil {
		return 0, err
	}
	members, err := s.client.SMembers(ctx, s.key(from)).Result()
	if err != nil {
		return 0, fmt.Errorf("chain: redis weight lookup failed: %w", err)
	}
	count := 0
	for _, member := range members {
		if stripCounter(member) == to {
			count++
		}
	}
	return count, nil
}

// stripCounter removes the ":<counter>" suffix from a set member, leaving
// the token text. Tokens may themselves contain ':', so only the last
// segment is dropped.
func stripCounter(member string) string {
	if i := strings.LastIndexByte(member, ':'); i >= 0 {
		return member[:i]
	}
	return member
}
