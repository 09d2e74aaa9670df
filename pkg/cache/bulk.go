package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/moneta-app/moneta-core/pkg/observability"
)

// GetMany reads the given keys in one storage round trip. Keys that are
// absent, expired, or unreadable are simply missing from the result; one
// item's failure never aborts the batch. Only a storage-backend failure
// on the batched read itself returns an error.
func (c *EncryptedCache) GetMany(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.get_many")
	defer span.End()
	span.SetAttribute("cache.batch_size", len(keys))

	now := c.now()
	result := make(map[string]json.RawMessage, len(keys))

	// Resolve what we can from the hot cache first.
	pending := make([]string, 0, len(keys))
	for _, key := range keys {
		if c.hot == nil {
			pending = append(pending, key)
			continue
		}
		rec, ok := c.hot.Get(key)
		if !ok {
			pending = append(pending, key)
			continue
		}
		if rec.Expired(now) {
			c.evict(ctx, key, c.config.physicalKey(key))
			continue
		}
		result[key] = rec.Data
	}

	if len(pending) == 0 {
		c.metrics.RecordCacheOperation("get_many", true, time.Since(start).Seconds())
		return result, nil
	}

	physicals := make([]string, 0, len(pending)+len(pending))
	for _, key := range pending {
		physicals = append(physicals, c.config.physicalKey(key))
		if c.config.isLegacyKey(key) {
			physicals = append(physicals, key)
		}
	}

	raws, err := c.store.MultiGet(ctx, physicals)
	if err != nil {
		span.RecordError(err)
		c.metrics.RecordCacheOperation("get_many", false, time.Since(start).Seconds())
		return nil, &StorageError{Op: "multiget", Err: err}
	}

	for _, key := range pending {
		physical := c.config.physicalKey(key)
		raw, ok := raws[physical]
		if !ok && c.config.isLegacyKey(key) {
			physical = key
			raw, ok = raws[physical]
		}
		if !ok {
			continue
		}

		rec, value, err := c.open(ctx, key, raw)
		if err != nil {
			if !errors.Is(err, ErrKeyUnavailable) {
				c.evict(ctx, key, physical)
			}
			continue
		}
		if rec != nil && rec.Expired(now) {
			c.evict(ctx, key, physical)
			continue
		}
		if rec != nil && c.hot != nil {
			c.hot.Add(key, rec)
		}
		result[key] = value
	}

	c.metrics.RecordCacheOperation("get_many", true, time.Since(start).Seconds())
	return result, nil
}

// SetMany writes the given entries in one storage round trip, applying the
// same per-item TTL and encryption rules as Set. An entry whose value
// cannot be serialized is skipped and logged; the rest of the batch still
// goes through. Returns the number of entries written.
func (c *EncryptedCache) SetMany(ctx context.Context, entries []Entry) (int, error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.set_many")
	defer span.End()
	span.SetAttribute("cache.batch_size", len(entries))

	createdAt := c.now().UnixMilli()
	batch := make(map[string]string, len(entries))
	records := make(map[string]*Record, len(entries))
	var encrypted, plaintext int64

	for _, entry := range entries {
		data, err := json.Marshal(entry.Value)
		if err != nil {
			c.logger.Warn("skipping unserializable bulk entry", map[string]interface{}{
				"key":   entry.Key,
				"error": err.Error(),
			})
			continue
		}

		var ttlMs *int64
		if entry.TTL != nil {
			ms := entry.TTL.Milliseconds()
			ttlMs = &ms
		}

		rec := &Record{
			Data:          data,
			CreatedAt:     createdAt,
			TTLMs:         ttlMs,
			SchemaVersion: SchemaVersion,
		}

		payload, sealed := c.seal(ctx, rec)
		batch[c.config.physicalKey(entry.Key)] = payload
		records[entry.Key] = rec
		if sealed {
			encrypted++
		} else {
			plaintext++
		}
	}

	if len(batch) == 0 {
		return 0, nil
	}

	if err := c.store.MultiSet(ctx, batch); err != nil {
		span.RecordError(err)
		c.metrics.RecordCacheOperation("set_many", false, time.Since(start).Seconds())
		return 0, &StorageError{Op: "multiset", Err: err}
	}

	if c.hot != nil {
		for key, rec := range records {
			c.hot.Add(key, rec)
		}
	}

	c.bumpWriteStats(ctx, encrypted, plaintext)
	c.metrics.RecordCacheOperation("set_many", true, time.Since(start).Seconds())
	return len(batch), nil
}
