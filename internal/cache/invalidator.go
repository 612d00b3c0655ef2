// Package cache emits cache-invalidation signals to the external API
// layer's Redis cache after pipeline writes.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/metrics"
)

// DefaultPattern matches every cached anomaly query result set. One write
// can affect many cached filter combinations, so all of them are dropped.
const DefaultPattern = "anomalies:*"

// Invalidator drops cached anomaly query results after a successful write.
type Invalidator struct {
	client  *redis.Client
	pattern string
	logger  *logging.Logger
}

// NewInvalidator creates an invalidator. A nil client disables invalidation;
// the pipeline then operates without the external cache.
func NewInvalidator(client *redis.Client, pattern string, logger *logging.Logger) *Invalidator {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Invalidator{client: client, pattern: pattern, logger: logger}
}

// Enabled reports whether a cache connection is configured.
func (i *Invalidator) Enabled() bool {
	return i != nil && i.client != nil
}

// Invalidate deletes all keys matching the configured pattern and returns
// the number of keys dropped. Failures are reported to the caller but are
// never fatal to transaction processing.
func (i *Invalidator) Invalidate(ctx context.Context) (int64, error) {
	if !i.Enabled() {
		return 0, nil
	}

	var deleted int64
	iter := i.client.Scan(ctx, 0, i.pattern, 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 100 {
			n, err := i.deleteKeys(ctx, batch)
			deleted += n
			if err != nil {
				return deleted, err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		metrics.CacheInvalidationErrors.Inc()
		return deleted, fmt.Errorf("scan cache keys: %w", err)
	}

	if len(batch) > 0 {
		n, err := i.deleteKeys(ctx, batch)
		deleted += n
		if err != nil {
			return deleted, err
		}
	}

	metrics.CacheInvalidations.Inc()
	if deleted > 0 {
		i.logger.Debug("cache invalidated",
			"pattern", i.pattern,
			"keys_deleted", deleted,
		)
	}
	return deleted, nil
}

func (i *Invalidator) deleteKeys(ctx context.Context, keys []string) (int64, error) {
	n, err := i.client.Del(ctx, keys...).Result()
	if err != nil {
		metrics.CacheInvalidationErrors.Inc()
		return n, fmt.Errorf("delete cache keys: %w", err)
	}
	return n, nil
}
