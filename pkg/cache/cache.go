package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moneta-app/moneta-core/pkg/observability"
	"github.com/moneta-app/moneta-core/pkg/security"
	"github.com/moneta-app/moneta-core/pkg/storage"
)

// EncryptedCache is the public façade of the encrypted cache engine.
//
// Callers interact only with this type: it obtains the active key from its
// KeyManager, runs payloads through the cipher codec, interprets bytes
// read back from storage, and maintains the persisted statistics on every
// mutating operation.
//
// EncryptedCache is safe for concurrent use by multiple goroutines.
type EncryptedCache struct {
	store   storage.Store
	keys    *KeyManager
	config  *Config
	logger  observability.Logger
	metrics observability.MetricsClient
	now     func() time.Time

	// hot holds decoded records in front of storage reads; nil when disabled
	hot *lru.Cache[string, *Record]

	statsMu     sync.Mutex
	stats       *Statistics
	statsLoaded bool

	rotating atomic.Bool
}

// New creates an encrypted cache over the given storage backend and key
// manager. A nil config, logger, or metrics client falls back to defaults.
func New(
	store storage.Store,
	keys *KeyManager,
	config *Config,
	logger observability.Logger,
	metrics observability.MetricsClient,
) (*EncryptedCache, error) {
	if store == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key manager is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Prefix == "" {
		config.Prefix = defaultPrefix
	}
	if logger == nil {
		logger = observability.NewLogger("cache")
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	c := &EncryptedCache{
		store:   store,
		keys:    keys,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}

	if config.HotCacheSize > 0 {
		hot, err := lru.New[string, *Record](config.HotCacheSize)
		if err != nil {
			return nil, fmt.Errorf("invalid hot cache size: %w", err)
		}
		c.hot = hot
	}

	return c, nil
}

// Set stores a value under key with no expiry.
func (c *EncryptedCache) Set(ctx context.Context, key string, value interface{}) error {
	return c.set(ctx, key, value, nil)
}

// SetWithTTL stores a value under key that expires once ttl has elapsed.
// A zero ttl expires immediately after the write instant.
func (c *EncryptedCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ttlMs := ttl.Milliseconds()
	return c.set(ctx, key, value, &ttlMs)
}

func (c *EncryptedCache) set(ctx context.Context, key string, value interface{}, ttlMs *int64) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.set")
	defer span.End()
	span.SetAttribute("cache.key", key)

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize value for %q: %w", key, err)
	}

	rec := &Record{
		Data:          data,
		CreatedAt:     c.now().UnixMilli(),
		TTLMs:         ttlMs,
		SchemaVersion: SchemaVersion,
	}

	encrypted, err := c.storeRecord(ctx, key, rec)
	if err != nil {
		span.RecordError(err)
		c.metrics.RecordCacheOperation("set", false, time.Since(start).Seconds())
		return err
	}

	if encrypted {
		c.bumpWriteStats(ctx, 1, 0)
	} else {
		c.bumpWriteStats(ctx, 0, 1)
	}
	c.metrics.RecordCacheOperation("set", true, time.Since(start).Seconds())
	return nil
}

// storeRecord seals and writes a record, reporting whether it went out
// encrypted. Only the storage write itself can fail.
func (c *EncryptedCache) storeRecord(ctx context.Context, key string, rec *Record) (bool, error) {
	payload, encrypted := c.seal(ctx, rec)
	if err := c.store.Set(ctx, c.config.physicalKey(key), payload); err != nil {
		return false, &StorageError{Op: "set", Key: key, Err: err}
	}
	if c.hot != nil {
		c.hot.Add(key, rec)
	}
	return encrypted, nil
}

// seal serializes a record and encrypts it under the active key. Data is
// never dropped: any key or cipher failure degrades to the plaintext
// serialized record.
func (c *EncryptedCache) seal(ctx context.Context, rec *Record) (string, bool) {
	recJSON, err := json.Marshal(rec)
	if err != nil {
		// Record fields are all marshalable; this cannot happen.
		return "", false
	}

	key, err := c.keys.GetOrCreateKey(ctx)
	if err != nil {
		c.logger.Warn("encryption key unavailable, writing plaintext record", map[string]interface{}{
			"error": err.Error(),
		})
		return string(recJSON), false
	}

	blob, err := security.Encrypt(recJSON, key.Material)
	if err != nil {
		c.logger.Warn("encryption failed, writing plaintext record", map[string]interface{}{
			"error": err.Error(),
		})
		return string(recJSON), false
	}

	envJSON, err := json.Marshal(Envelope{Version: 2, KeyID: key.ID, Data: blob})
	if err != nil {
		return string(recJSON), false
	}
	return string(envJSON), true
}

// Get reads the value stored under key into out. Absence, expiry, and
// corruption are all reported as ErrCacheMiss; TTL is a hard expiry and is
// never refreshed on read.
func (c *EncryptedCache) Get(ctx context.Context, key string, out interface{}) error {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.get")
	defer span.End()
	span.SetAttribute("cache.key", key)

	now := c.now()

	if c.hot != nil {
		if rec, ok := c.hot.Get(key); ok {
			if rec.Expired(now) {
				c.evict(ctx, key, c.config.physicalKey(key))
				c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
				return ErrCacheMiss
			}
			c.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
			return unmarshalValue(rec.Data, out)
		}
	}

	physical := c.config.physicalKey(key)
	raw, err := c.store.Get(ctx, physical)
	if errors.Is(err, storage.ErrNotFound) && c.config.isLegacyKey(key) {
		physical = key
		raw, err = c.store.Get(ctx, physical)
	}
	if errors.Is(err, storage.ErrNotFound) {
		c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
		return ErrCacheMiss
	}
	if err != nil {
		span.RecordError(err)
		return &StorageError{Op: "get", Key: key, Err: err}
	}

	rec, value, err := c.open(ctx, key, raw)
	if err != nil {
		if !errors.Is(err, ErrKeyUnavailable) {
			// Unreadable under every known shape: a broken entry is
			// equivalent to a miss, and the key is evicted.
			c.evict(ctx, key, physical)
		}
		c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
		return ErrCacheMiss
	}

	if rec != nil && rec.Expired(now) {
		c.evict(ctx, key, physical)
		c.metrics.RecordCacheOperation("get", false, time.Since(start).Seconds())
		return ErrCacheMiss
	}

	if rec != nil && c.hot != nil {
		c.hot.Add(key, rec)
	}

	c.metrics.RecordCacheOperation("get", true, time.Since(start).Seconds())
	return unmarshalValue(value, out)
}

// open interprets raw storage bytes into a record and its value. The
// returned record is nil for payloads without envelope metadata (bare
// legacy values), which never expire. Errors are ErrCorruptedRecord,
// security.ErrDecryptionFailed (both: evict), or ErrKeyUnavailable
// (transient: do not evict).
func (c *EncryptedCache) open(ctx context.Context, key, raw string) (*Record, json.RawMessage, error) {
	payload := c.config.parsePayload(key, raw)

	switch payload.Kind {
	case KindCorrupted:
		return nil, nil, ErrCorruptedRecord

	case KindLegacyTimestamp:
		value, err := json.Marshal(LegacyTimestamp{TS: payload.LegacyTS})
		if err != nil {
			return nil, nil, ErrCorruptedRecord
		}
		return nil, value, nil

	case KindEnvelope:
		blob, ok := payload.Envelope.Blob()
		if !ok {
			return nil, nil, ErrCorruptedRecord
		}

		k, err := c.keys.KeyByID(ctx, payload.Envelope.KeyID)
		if err != nil {
			return nil, nil, err
		}
		if k == nil {
			// Sealed under a key that no longer exists.
			return nil, nil, fmt.Errorf("%w: unknown key id", security.ErrDecryptionFailed)
		}

		plaintext, err := security.Decrypt(blob, k.Material)
		if err != nil {
			return nil, nil, err
		}
		return recordFromJSON(plaintext)

	default: // KindRawJSON
		return recordFromJSON(payload.Raw)
	}
}

// recordFromJSON interprets decrypted or plaintext JSON as a record
// envelope when it carries the record fields, and as a bare value
// otherwise. Unknown schema versions pass through unchanged; they are
// migratable, not corrupt.
func recordFromJSON(data []byte) (*Record, json.RawMessage, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err == nil && rec.looksLikeRecord() {
		return &rec, rec.Data, nil
	}
	if json.Valid(data) {
		return nil, json.RawMessage(data), nil
	}
	return nil, nil, ErrCorruptedRecord
}

// Remove deletes the record stored under key.
func (c *EncryptedCache) Remove(ctx context.Context, key string) error {
	ctx, span := observability.StartSpan(ctx, "cache.remove")
	defer span.End()

	if c.hot != nil {
		c.hot.Remove(key)
	}

	if err := c.store.Remove(ctx, c.config.physicalKey(key)); err != nil {
		span.RecordError(err)
		return &StorageError{Op: "remove", Key: key, Err: err}
	}

	if c.config.isLegacyKey(key) {
		if err := c.store.Remove(ctx, key); err != nil {
			span.RecordError(err)
			return &StorageError{Op: "remove", Key: key, Err: err}
		}
	}
	return nil
}

// Clear removes every cache-owned record and resets the statistics. Keys
// outside the cache namespace are never touched; the persisted encryption
// key survives.
func (c *EncryptedCache) Clear(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "cache.clear")
	defer span.End()

	keys, err := c.store.Keys(ctx)
	if err != nil {
		span.RecordError(err)
		return &StorageError{Op: "clear", Err: err}
	}

	for _, physical := range keys {
		if !c.ownsKey(physical) || c.config.isReservedKey(physical) {
			continue
		}
		if err := c.store.Remove(ctx, physical); err != nil {
			span.RecordError(err)
			return &StorageError{Op: "clear", Key: physical, Err: err}
		}
	}

	if c.hot != nil {
		c.hot.Purge()
	}

	c.resetStats(ctx)
	return nil
}

func (c *EncryptedCache) ownsKey(physical string) bool {
	return len(physical) > len(c.config.Prefix) && physical[:len(c.config.Prefix)] == c.config.Prefix
}

// evict removes an unreadable or expired entry. Failures here only mean
// the entry will be evicted again on the next read, so they are logged and
// swallowed.
func (c *EncryptedCache) evict(ctx context.Context, key, physical string) {
	if c.hot != nil {
		c.hot.Remove(key)
	}
	if err := c.store.Remove(ctx, physical); err != nil {
		c.logger.Debug("failed to evict cache entry", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func unmarshalValue(value json.RawMessage, out interface{}) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("failed to deserialize cached value: %w", err)
	}
	return nil
}
