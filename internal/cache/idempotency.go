// Package cache holds Redis-backed helpers shared by HTTP handlers.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers which resource an Idempotency-Key produced.
// Keys are scoped per caller so two students cannot collide.
type IdempotencyStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyStore returns a store whose keys expire after ttl.
func NewIdempotencyStore(rdb *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb, ttl: ttl}
}

func lockKey(scope, key string) string   { return "idemp:" + scope + ":" + key }
func resultKey(scope, key string) string { return "idemp:map:" + scope + ":" + key }

// TryLock claims key for scope. It returns false if another request holds
// or already completed it.
func (s *IdempotencyStore) TryLock(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "setnx")
	}
	return ok, nil
}

// Release drops a claim whose request failed before producing anything,
// so the client may retry with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, lockKey(scope, key)).Err(); err != nil {
		return errors.Wrap(err, "del")
	}
	return nil
}

// Remember stores the result of the request that held key.
func (s *IdempotencyStore) Remember(ctx context.Context, scope, key, value string) error {
	if err := s.rdb.Set(ctx, resultKey(scope, key), value, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "set")
	}
	return nil
}

// Recall returns the stored result for key, if any.
func (s *IdempotencyStore) Recall(ctx context.Context, scope, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, resultKey(scope, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get")
	}
	return val, true, nil
}
