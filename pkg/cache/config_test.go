package cache

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "enc_cache:", config.Prefix)
	assert.Equal(t, 256, config.HotCacheSize)
	assert.Contains(t, config.LegacyKeys, "last_sync_timestamp")
	assert.Contains(t, config.LegacyKeys, "user_preferences")
}

func TestLoadConfigFromViper(t *testing.T) {
	t.Run("defaults when nothing is set", func(t *testing.T) {
		viper.Reset()
		config, err := LoadConfigFromViper()
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), config)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.encrypted.prefix", "moneta:")
		viper.Set("cache.encrypted.hot_cache_size", 64)
		viper.Set("cache.encrypted.legacy_keys", []string{"old_key"})

		config, err := LoadConfigFromViper()
		require.NoError(t, err)
		assert.Equal(t, "moneta:", config.Prefix)
		assert.Equal(t, 64, config.HotCacheSize)
		assert.Equal(t, []string{"old_key"}, config.LegacyKeys)
	})

	t.Run("prefix must end with a colon", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.encrypted.prefix", "moneta")

		_, err := LoadConfigFromViper()
		assert.Error(t, err)
	})

	t.Run("negative hot cache size is rejected", func(t *testing.T) {
		viper.Reset()
		viper.Set("cache.encrypted.hot_cache_size", -1)

		_, err := LoadConfigFromViper()
		assert.Error(t, err)
	})
}

func TestConfig_KeyHelpers(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "enc_cache:budgets", config.physicalKey("budgets"))
	assert.True(t, config.isReservedKey("enc_cache:__stats__"))
	assert.True(t, config.isReservedKey("enc_cache:__key__"))
	assert.True(t, config.isReservedKey("enc_cache:__key_pending__"))
	assert.False(t, config.isReservedKey("enc_cache:budgets"))

	assert.True(t, config.isLegacyKey("session_expiry"))
	assert.False(t, config.isLegacyKey("budgets"))
}
