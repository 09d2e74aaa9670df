package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneta-app/moneta-core/pkg/security"
)

func storedKeyID(t *testing.T, f *cacheFixture, key string) string {
	t.Helper()
	raw, err := f.store.Get(context.Background(), f.config.physicalKey(key))
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	return env.KeyID
}

func TestRotateEncryptionKey(t *testing.T) {
	ctx := context.Background()

	t.Run("re-encrypts every record under the new key", func(t *testing.T) {
		config := DefaultConfig()
		config.HotCacheSize = 0
		f := newFixtureWithConfig(t, config)

		for i := 0; i < 5; i++ {
			require.NoError(t, f.cache.Set(ctx, fmt.Sprintf("key-%d", i), i))
		}
		oldKID := storedKeyID(t, f, "key-0")

		result, err := f.cache.RotateEncryptionKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, result.Rotated)
		assert.Equal(t, 0, result.Skipped)

		for i := 0; i < 5; i++ {
			key := fmt.Sprintf("key-%d", i)
			assert.NotEqual(t, oldKID, storedKeyID(t, f, key))

			var out int
			require.NoError(t, f.cache.Get(ctx, key, &out))
			assert.Equal(t, i, out)
		}
	})

	t.Run("record under an unknown key is skipped, not fatal", func(t *testing.T) {
		config := DefaultConfig()
		config.HotCacheSize = 0
		f := newFixtureWithConfig(t, config)

		require.NoError(t, f.cache.Set(ctx, "good", "value"))

		// A record sealed by a key this installation no longer holds.
		strayKey, err := security.GenerateKey()
		require.NoError(t, err)
		blob, err := security.Encrypt([]byte(`{"data":"x","createdAt":1,"schemaVersion":2}`), strayKey)
		require.NoError(t, err)
		stray, _ := json.Marshal(Envelope{Version: 2, KeyID: "long-gone", Data: blob})
		require.NoError(t, f.store.Set(ctx, config.physicalKey("orphan"), string(stray)))

		result, err := f.cache.RotateEncryptionKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Rotated)
		assert.Equal(t, 1, result.Skipped)

		var out string
		require.NoError(t, f.cache.Get(ctx, "good", &out))
		assert.Equal(t, "value", out)
	})

	t.Run("untagged envelope gains a key id", func(t *testing.T) {
		config := DefaultConfig()
		config.HotCacheSize = 0
		f := newFixtureWithConfig(t, config)

		active, err := f.keys.GetOrCreateKey(ctx)
		require.NoError(t, err)
		blob, err := security.Encrypt([]byte(`{"data":42,"createdAt":1,"schemaVersion":2}`), active.Material)
		require.NoError(t, err)
		require.NoError(t, f.store.Set(ctx, config.physicalKey("bare"), blob))

		result, err := f.cache.RotateEncryptionKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Rotated)

		assert.NotEmpty(t, storedKeyID(t, f, "bare"))

		var out int
		require.NoError(t, f.cache.Get(ctx, "bare", &out))
		assert.Equal(t, 42, out)
	})

	t.Run("plaintext records pass through untouched", func(t *testing.T) {
		config := DefaultConfig()
		config.HotCacheSize = 0
		f := newFixtureWithConfig(t, config)

		plain := `{"data":"open","createdAt":1,"schemaVersion":2}`
		require.NoError(t, f.store.Set(ctx, config.physicalKey("plain"), plain))

		result, err := f.cache.RotateEncryptionKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Rotated)
		assert.Equal(t, 0, result.Skipped)

		raw, err := f.store.Get(ctx, config.physicalKey("plain"))
		require.NoError(t, err)
		assert.Equal(t, plain, raw)
	})

	t.Run("only one rotation may run at a time", func(t *testing.T) {
		f := newFixture(t)
		f.cache.rotating.Store(true)

		_, err := f.cache.RotateEncryptionKey(ctx)
		assert.ErrorIs(t, err, ErrRotationInProgress)

		f.cache.rotating.Store(false)
		_, err = f.cache.RotateEncryptionKey(ctx)
		assert.NoError(t, err)
	})

	t.Run("repeated rotations keep records readable", func(t *testing.T) {
		config := DefaultConfig()
		config.HotCacheSize = 0
		f := newFixtureWithConfig(t, config)

		require.NoError(t, f.cache.Set(ctx, "k", "v"))

		for i := 0; i < 3; i++ {
			result, err := f.cache.RotateEncryptionKey(ctx)
			require.NoError(t, err)
			require.Equal(t, 1, result.Rotated)
		}

		var out string
		require.NoError(t, f.cache.Get(ctx, "k", &out))
		assert.Equal(t, "v", out)
	})
}
