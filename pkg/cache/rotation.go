package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/moneta-app/moneta-core/pkg/observability"
	"github.com/moneta-app/moneta-core/pkg/security"
)

// RotateEncryptionKey replaces the active key and re-encrypts every
// existing record under the new one. Records that fail to decrypt under
// the old key are skipped and logged, never fatal to the rotation as a
// whole. The old key is discarded only after every record has been
// attempted; a crash or storage failure before that point leaves the old
// key active and every already-rewritten record readable via the pending
// key slot. Only one rotation may run at a time.
func (c *EncryptedCache) RotateEncryptionKey(ctx context.Context) (*RotationResult, error) {
	if !c.rotating.CompareAndSwap(false, true) {
		return nil, ErrRotationInProgress
	}
	defer c.rotating.Store(false)

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "cache.rotate_key")
	defer span.End()

	oldKey, newKey, err := c.keys.Rotate(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	keys, err := c.store.Keys(ctx)
	if err != nil {
		// Nothing rewritten yet, so the pending key can be dropped cleanly.
		c.keys.AbortRotation(ctx)
		span.RecordError(err)
		return nil, &StorageError{Op: "keys", Err: err}
	}

	result := &RotationResult{}

	for _, physical := range keys {
		if !c.ownsKey(physical) || c.config.isReservedKey(physical) {
			continue
		}
		logical := strings.TrimPrefix(physical, c.config.Prefix)

		raw, err := c.store.Get(ctx, physical)
		if err != nil {
			result.Skipped++
			c.logger.Warn("rotation: failed to read record", map[string]interface{}{
				"key":   logical,
				"error": err.Error(),
			})
			continue
		}

		payload := c.config.parsePayload(logical, raw)
		if payload.Kind != KindEnvelope {
			// Plaintext and legacy entries carry no key material to rotate.
			continue
		}

		blob, ok := payload.Envelope.Blob()
		if !ok {
			result.Skipped++
			continue
		}

		decryptKey, err := c.keys.KeyByID(ctx, payload.Envelope.KeyID)
		if err != nil || decryptKey == nil {
			result.Skipped++
			c.logger.Warn("rotation: no key for record, leaving as-is", map[string]interface{}{
				"key": logical,
				"kid": payload.Envelope.KeyID,
			})
			continue
		}
		if decryptKey.ID == newKey.ID {
			continue
		}

		plaintext, err := security.Decrypt(blob, decryptKey.Material)
		if err != nil {
			result.Skipped++
			c.logger.Warn("rotation: record failed to decrypt, leaving as-is", map[string]interface{}{
				"key":   logical,
				"error": err.Error(),
			})
			continue
		}

		sealed, err := security.Encrypt(plaintext, newKey.Material)
		if err != nil {
			// Abort only while nothing has been rewritten; afterwards the
			// pending key must survive for the records already under it.
			if result.Rotated == 0 {
				c.keys.AbortRotation(ctx)
			}
			span.RecordError(err)
			return result, err
		}

		envJSON, err := json.Marshal(Envelope{Version: 2, KeyID: newKey.ID, Data: sealed})
		if err != nil {
			if result.Rotated == 0 {
				c.keys.AbortRotation(ctx)
			}
			return result, err
		}

		if err := c.store.Set(ctx, physical, string(envJSON)); err != nil {
			// Keep the pending key so records already rewritten under it
			// stay readable; the old key remains active.
			span.RecordError(err)
			return result, &StorageError{Op: "set", Key: logical, Err: err}
		}
		result.Rotated++
	}

	if err := c.keys.CommitRotation(ctx, newKey); err != nil {
		span.RecordError(err)
		return result, err
	}

	c.metrics.RecordCacheOperation("rotate", true, time.Since(start).Seconds())
	c.logger.Info("encryption key rotated", map[string]interface{}{
		"old_kid": oldKey.ID,
		"new_kid": newKey.ID,
		"rotated": result.Rotated,
		"skipped": result.Skipped,
	})
	return result, nil
}
