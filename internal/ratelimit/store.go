// Package ratelimit implements the Rate Limiter (§4.F): a per-domain
// concurrency gate, request-spacing/backoff controller, and a global
// RPS ceiling, shared across worker processes through a pluggable
// coordination store.
//
// Grounded on original_source/webharvest/worker/app/utils/rate_limiter.py's
// DomainRateLimiter/GlobalRateLimiter (Redis pipeline increment+TTL-reset,
// sorted-set sliding window), translated into a CoordinationStore
// interface with two backends: RedisStore (github.com/redis/go-redis/v9,
// TxPipeline for the atomic step, ZADD/ZREMRANGEBYSCORE for the window)
// and MemoryStore, which adapts the teacher's pkg/limiter.ConcurrentRateLimiter
// mutex-protected map to the same interface for single-process runs. The
// caller picks the backend by constructor; this package reads no
// environment variable.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// CoordinationStore is the minimal atomic-counter/TTL/sorted-set
// primitive the domain and global limiters are built on. Exactly one
// implementation backs a given Limiter: RedisStore for multi-process
// coordination, MemoryStore for a single process.
type CoordinationStore interface {
	// Incr increments key by 1, resets its TTL to ttl, and returns the
	// post-increment value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Decr decrements key by 1 and returns the post-decrement value.
	Decr(ctx context.Context, key string) (int64, error)
	// Get returns the current value of key, or ("", false) if absent/expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value at key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// WindowInsert adds member (scored at nowMs) to the sorted set at
	// key, first evicting entries scored below nowMs-windowMs, and
	// returns the post-insert cardinality.
	WindowInsert(ctx context.Context, key string, nowMs, windowMs int64) (int64, error)
}

// MemoryStore is an in-process CoordinationStore, the single-process
// alternative to RedisStore. Mirrors the teacher's
// pkg/limiter.ConcurrentRateLimiter mutex-protected map discipline.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]counterEntry
	strings  map[string]stringEntry
	windows  map[string][]int64
}

type counterEntry struct {
	value    int64
	expireAt time.Time
}

type stringEntry struct {
	value    string
	expireAt time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]counterEntry),
		strings:  make(map[string]stringEntry),
		windows:  make(map[string][]int64),
	}
}

func (m *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.counters[key]
	if !ok || time.Now().After(entry.expireAt) {
		entry = counterEntry{}
	}
	entry.value++
	entry.expireAt = time.Now().Add(ttl)
	m.counters[key] = entry
	return entry.value, nil
}

func (m *MemoryStore) Decr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.counters[key]
	if !ok {
		return 0, nil
	}
	entry.value--
	if entry.value < 0 {
		entry.value = 0
	}
	m.counters[key] = entry
	return entry.value, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.strings[key]; ok && !time.Now().After(entry.expireAt) {
		return entry.value, true, nil
	}
	if counter, ok := m.counters[key]; ok && !time.Now().After(counter.expireAt) {
		return strconv.FormatInt(counter.value, 10), true, nil
	}
	return "", false, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.strings[key] = stringEntry{value: value, expireAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.strings, key)
	delete(m.counters, key)
	return nil
}

func (m *MemoryStore) WindowInsert(_ context.Context, key string, nowMs, windowMs int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.windows[key]
	cutoff := nowMs - windowMs
	kept := entries[:0]
	for _, ts := range entries {
		if ts >= cutoff {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, nowMs)
	m.windows[key] = kept
	return int64(len(kept)), nil
}
