package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the multi-process CoordinationStore backend, built from
// a Redis DSN by NewRedisStore. Grounded on
// original_source/webharvest/worker/app/utils/rate_limiter.py's use of
// a Redis pipeline for the atomic increment+TTL-reset step and a
// ZADD/ZREMRANGEBYSCORE sorted set for the global sliding-RPS window.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials dsn (a redis:// or rediss:// URL) and
// verifies connectivity with a PING.
func NewRedisStore(ctx context.Context, dsn string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis dsn: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ratelimit: redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close releases the underlying Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	val, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: decr %s: %w", key, err)
	}
	if val < 0 {
		_ = s.client.Set(ctx, key, 0, redis.KeepTTL).Err()
		return 0, nil
	}
	return val, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ratelimit: get %s: %w", key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("ratelimit: set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("ratelimit: delete %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) WindowInsert(ctx context.Context, key string, nowMs, windowMs int64) (int64, error) {
	member := strconv.FormatInt(nowMs, 10) + ":" + strconv.Itoa(int(nowMs%1000))
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(nowMs-windowMs, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(windowMs)*time.Millisecond*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: window insert %s: %w", key, err)
	}
	return card.Val(), nil
}
