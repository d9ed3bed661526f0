package util

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter counts delivery attempts per key in Redis. Without Redis it
// counts in process, which is enough for a single worker.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	local map[string]int64
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl, local: map[string]int64{}}
}

// IncrementAndGet increments the counter for key and returns the new value.
// A nil counter always reports a first attempt.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if r == nil {
		return 1, nil
	}
	if r.rdb == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.local[key]++
		return r.local[key], nil
	}
	count, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		r.rdb.Expire(ctx, key, r.ttl)
	}
	return count, nil
}

// Reset clears the counter for key.
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	if r == nil {
		return nil
	}
	if r.rdb == nil {
		r.mu.Lock()
		delete(r.local, key)
		r.mu.Unlock()
		return nil
	}
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey builds the counter key for a handler and message id.
func FormatRetryKey(handler string, messageID string) string {
	return "retry:" + handler + ":" + messageID
}
