package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper remembers processed message ids in Redis for a TTL.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce returns true the first time handler sees messageID and false for
// duplicates. A nil Deduper, an empty id, or a Redis failure all allow processing.
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, messageID string) bool {
	if d == nil || d.rdb == nil || messageID == "" {
		return true
	}
	key := "dedup:" + handler + ":" + messageID

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// redis 不可用时不阻止处理，下游写入本身是幂等的
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("handler", handler),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("message_id", messageID),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// Release forgets messageID so a redelivery is processed again. Used when
// processing failed after AcquireOnce succeeded.
func (d *Deduper) Release(ctx context.Context, handler string, messageID string) {
	if d == nil || d.rdb == nil || messageID == "" {
		return
	}
	if err := d.rdb.Del(ctx, "dedup:"+handler+":"+messageID).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key",
			zap.String("handler", handler),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
