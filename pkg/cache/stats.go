package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/moneta-app/moneta-core/pkg/storage"
)

// Statistics returns the current persisted aggregate counters.
func (c *EncryptedCache) Statistics(ctx context.Context) (*Statistics, error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if err := c.ensureStatsLoaded(ctx); err != nil {
		return nil, err
	}

	snapshot := *c.stats
	return &snapshot, nil
}

// ensureStatsLoaded lazily reads the persisted counters. A corrupt stats
// record starts over from zero rather than poisoning the cache.
func (c *EncryptedCache) ensureStatsLoaded(ctx context.Context) error {
	if c.statsLoaded {
		return nil
	}

	stats := &Statistics{}
	raw, err := c.store.Get(ctx, c.config.statsKey())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// first use
	case err != nil:
		return &StorageError{Op: "get", Key: c.config.statsKey(), Err: err}
	default:
		if unmarshalErr := json.Unmarshal([]byte(raw), stats); unmarshalErr != nil {
			c.logger.Warn("corrupt cache statistics, resetting", map[string]interface{}{
				"error": unmarshalErr.Error(),
			})
			stats = &Statistics{}
		}
	}

	c.stats = stats
	c.statsLoaded = true
	return nil
}

// mutateStats applies fn to the counters and persists them best-effort.
// Statistics are advisory; a failed persist never fails the operation that
// triggered it.
func (c *EncryptedCache) mutateStats(ctx context.Context, fn func(*Statistics)) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if err := c.ensureStatsLoaded(ctx); err != nil {
		c.logger.Warn("failed to load cache statistics", map[string]interface{}{"error": err.Error()})
		return
	}

	fn(c.stats)
	c.persistStatsLocked(ctx)
}

func (c *EncryptedCache) resetStats(ctx context.Context) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.stats = &Statistics{}
	c.statsLoaded = true
	c.persistStatsLocked(ctx)
}

func (c *EncryptedCache) persistStatsLocked(ctx context.Context) {
	data, err := json.Marshal(c.stats)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, c.config.statsKey(), string(data)); err != nil {
		c.logger.Warn("failed to persist cache statistics", map[string]interface{}{"error": err.Error()})
	}
}

func (c *EncryptedCache) bumpWriteStats(ctx context.Context, encrypted, plaintext int64) {
	if encrypted == 0 && plaintext == 0 {
		return
	}
	c.mutateStats(ctx, func(s *Statistics) {
		s.TotalItems += encrypted + plaintext
		s.EncryptedItems += encrypted
		s.PlaintextItems += plaintext
	})
}
