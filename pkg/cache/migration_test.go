package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moneta-app/moneta-core/pkg/storage"
)

func TestMigrateLegacyEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("bare timestamp moves into an encrypted record", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, "last_sync_timestamp", "1699999999000"))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, migrated)

		_, err = f.store.Get(ctx, "last_sync_timestamp")
		assert.ErrorIs(t, err, storage.ErrNotFound, "bare key must be gone")

		raw, err := f.store.Get(ctx, f.config.physicalKey("last_sync_timestamp"))
		require.NoError(t, err)
		assert.NotContains(t, raw, "1699999999000", "migrated copy must be encrypted")

		var out LegacyTimestamp
		require.NoError(t, f.cache.Get(ctx, "last_sync_timestamp", &out))
		assert.Equal(t, int64(1699999999000), out.TS)
	})

	t.Run("bare json value keeps its shape", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, "user_preferences", `{"theme":"dark","locale":"de"}`))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, migrated)

		var out map[string]string
		require.NoError(t, f.cache.Get(ctx, "user_preferences", &out))
		assert.Equal(t, "dark", out["theme"])
		assert.Equal(t, "de", out["locale"])
	})

	t.Run("stranded full record keeps its ttl metadata", func(t *testing.T) {
		f := newFixture(t)

		ttlMs := int64(60_000)
		rec, _ := json.Marshal(Record{
			Data:          json.RawMessage(`"temp"`),
			CreatedAt:     f.clock.Now().UnixMilli(),
			TTLMs:         &ttlMs,
			SchemaVersion: SchemaVersion,
		})
		require.NoError(t, f.store.Set(ctx, "session_expiry", string(rec)))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, migrated)

		var out string
		require.NoError(t, f.cache.Get(ctx, "session_expiry", &out))
		assert.Equal(t, "temp", out)

		f.clock.Advance(2 * time.Minute)
		assert.ErrorIs(t, f.cache.Get(ctx, "session_expiry", &out), ErrCacheMiss)
	})

	t.Run("already encrypted entry is only relocated", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.cache.Set(ctx, "user_preferences", map[string]string{"theme": "light"}))
		sealed, err := f.store.Get(ctx, f.config.physicalKey("user_preferences"))
		require.NoError(t, err)

		// Simulate an install where the envelope ended up at the bare key.
		require.NoError(t, f.cache.Remove(ctx, "user_preferences"))
		f.cache.hot.Purge()
		require.NoError(t, f.store.Set(ctx, "user_preferences", sealed))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, migrated)

		moved, err := f.store.Get(ctx, f.config.physicalKey("user_preferences"))
		require.NoError(t, err)
		assert.Equal(t, sealed, moved, "envelope must move without being rewritten")

		var out map[string]string
		require.NoError(t, f.cache.Get(ctx, "user_preferences", &out))
		assert.Equal(t, "light", out["theme"])
	})

	t.Run("stale bare value never clobbers a current record", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.cache.Set(ctx, "last_sync_timestamp", LegacyTimestamp{TS: 1700000000000}))
		require.NoError(t, f.store.Set(ctx, "last_sync_timestamp", "1699999999000"))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, migrated)

		_, err = f.store.Get(ctx, "last_sync_timestamp")
		assert.ErrorIs(t, err, storage.ErrNotFound, "stale bare copy must still be dropped")

		f.cache.hot.Purge()
		var out LegacyTimestamp
		require.NoError(t, f.cache.Get(ctx, "last_sync_timestamp", &out))
		assert.Equal(t, int64(1700000000000), out.TS, "current record must survive migration")
	})

	t.Run("corrupt legacy entry is dropped and not counted", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, "last_backup_timestamp", "###"))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, migrated)

		_, err = f.store.Get(ctx, "last_backup_timestamp")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Set(ctx, "last_sync_timestamp", "1699999999000"))

		migrated, err := f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, migrated)

		before, err := f.store.Get(ctx, f.config.physicalKey("last_sync_timestamp"))
		require.NoError(t, err)

		migrated, err = f.cache.MigrateLegacyEntries(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, migrated)

		after, err := f.store.Get(ctx, f.config.physicalKey("last_sync_timestamp"))
		require.NoError(t, err)
		assert.Equal(t, before, after, "a second run must not rewrite anything")
	})
}
