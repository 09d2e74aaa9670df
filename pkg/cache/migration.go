package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/moneta-app/moneta-core/pkg/observability"
	"github.com/moneta-app/moneta-core/pkg/storage"
)

// MigrateLegacyEntries rewrites every known legacy key's old-shaped value
// through the normal encrypted write path and removes the bare original.
// Entries already in the current format are untouched. The operation is
// idempotent: once the bare keys are gone a second run is a no-op.
func (c *EncryptedCache) MigrateLegacyEntries(ctx context.Context) (int, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.migrate_legacy")
	defer span.End()

	migrated := 0

	for _, legacyKey := range c.config.LegacyKeys {
		raw, err := c.store.Get(ctx, legacyKey)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return migrated, &StorageError{Op: "get", Key: legacyKey, Err: err}
		}

		// A current-format record already under the prefix wins over the
		// stale bare value; drop the bare copy without rewriting anything.
		if _, err := c.store.Get(ctx, c.config.physicalKey(legacyKey)); err == nil {
			if err := c.store.Remove(ctx, legacyKey); err != nil {
				return migrated, &StorageError{Op: "remove", Key: legacyKey, Err: err}
			}
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			span.RecordError(err)
			return migrated, &StorageError{Op: "get", Key: legacyKey, Err: err}
		}

		payload := c.config.parsePayload(legacyKey, raw)
		switch payload.Kind {
		case KindLegacyTimestamp:
			if err := c.Set(ctx, legacyKey, LegacyTimestamp{TS: payload.LegacyTS}); err != nil {
				return migrated, err
			}

		case KindRawJSON:
			var rec Record
			if json.Unmarshal(payload.Raw, &rec) == nil && rec.looksLikeRecord() {
				// A full record stranded at the bare location: re-seal it
				// as-is so its TTL metadata survives the move.
				sealed, err := c.storeRecord(ctx, legacyKey, &rec)
				if err != nil {
					return migrated, err
				}
				if sealed {
					c.bumpWriteStats(ctx, 1, 0)
				} else {
					c.bumpWriteStats(ctx, 0, 1)
				}
			} else {
				if err := c.Set(ctx, legacyKey, payload.Raw); err != nil {
					return migrated, err
				}
			}

		case KindEnvelope:
			// Already encrypted, only mislocated; move it under the prefix.
			if err := c.store.Set(ctx, c.config.physicalKey(legacyKey), raw); err != nil {
				return migrated, &StorageError{Op: "set", Key: legacyKey, Err: err}
			}

		case KindCorrupted:
			c.logger.Warn("dropping corrupt legacy entry", map[string]interface{}{"key": legacyKey})
			c.evict(ctx, legacyKey, legacyKey)
			continue
		}

		if err := c.store.Remove(ctx, legacyKey); err != nil {
			return migrated, &StorageError{Op: "remove", Key: legacyKey, Err: err}
		}
		migrated++
	}

	span.SetAttribute("cache.migrated", migrated)
	c.metrics.RecordCacheOperation("migrate", true, time.Since(start).Seconds())
	c.logger.Info("legacy migration finished", map[string]interface{}{"migrated": migrated})
	return migrated, nil
}
