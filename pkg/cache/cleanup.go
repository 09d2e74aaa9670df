package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/moneta-app/moneta-core/pkg/observability"
)

// CleanupExpired sweeps every cache-owned record and evicts those whose
// TTL has elapsed. Unreadable records found along the way are evicted too.
// Returns the number of expired records reclaimed. Intended as a periodic
// O(n) job, not something to run on every access.
func (c *EncryptedCache) CleanupExpired(ctx context.Context) (int, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.cleanup_expired")
	defer span.End()

	keys, err := c.store.Keys(ctx)
	if err != nil {
		span.RecordError(err)
		c.metrics.RecordCacheOperation("cleanup", false, time.Since(start).Seconds())
		return 0, &StorageError{Op: "keys", Err: err}
	}

	now := c.now()
	evicted := 0

	for _, physical := range keys {
		if !c.ownsKey(physical) || c.config.isReservedKey(physical) {
			continue
		}
		logical := strings.TrimPrefix(physical, c.config.Prefix)

		raw, err := c.store.Get(ctx, physical)
		if err != nil {
			continue
		}

		rec, _, err := c.open(ctx, logical, raw)
		if err != nil {
			if errors.Is(err, ErrKeyUnavailable) {
				continue
			}
			c.evict(ctx, logical, physical)
			continue
		}

		if rec != nil && rec.Expired(now) {
			c.evict(ctx, logical, physical)
			evicted++
		}
	}

	c.mutateStats(ctx, func(s *Statistics) {
		s.ExpiredItemsReclaimed += int64(evicted)
		s.LastCleanupAt = now.UnixMilli()
	})

	span.SetAttribute("cache.evicted", evicted)
	c.metrics.RecordCacheOperation("cleanup", true, time.Since(start).Seconds())
	c.logger.Debug("expiry sweep finished", map[string]interface{}{"evicted": evicted})
	return evicted, nil
}
