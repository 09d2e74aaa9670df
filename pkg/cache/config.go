package cache

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Reserved suffixes under the cache prefix. These keys belong to the
// engine itself and are never treated as records.
const (
	statsKeySuffix      = "__stats__"
	keySlotSuffix       = "__key__"
	pendingSlotSuffix   = "__key_pending__"
	defaultPrefix       = "enc_cache:"
	defaultHotCacheSize = 256
)

// defaultLegacyKeys are the bare, pre-encryption storage keys older
// installs may still carry. Migration rewrites them through the encrypted
// path; reads normalize them on the fly until then.
var defaultLegacyKeys = []string{
	"last_sync_timestamp",
	"last_backup_timestamp",
	"session_expiry",
	"user_preferences",
}

// Config holds the tunables of the encrypted cache engine.
type Config struct {
	// Prefix namespaces every cache-owned storage key. Clear, cleanup and
	// migration never touch keys outside this prefix and the known legacy
	// keys.
	Prefix string `mapstructure:"prefix"`

	// HotCacheSize bounds the in-memory LRU of decoded records placed in
	// front of storage reads. Zero disables the hot cache.
	HotCacheSize int `mapstructure:"hot_cache_size"`

	// LegacyKeys lists the bare legacy storage keys recognized by reads
	// and by MigrateLegacyEntries.
	LegacyKeys []string `mapstructure:"legacy_keys"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Prefix:       defaultPrefix,
		HotCacheSize: defaultHotCacheSize,
		LegacyKeys:   append([]string(nil), defaultLegacyKeys...),
	}
}

// LoadConfigFromViper loads engine configuration from viper, falling back
// to defaults for anything unset.
func LoadConfigFromViper() (*Config, error) {
	config := DefaultConfig()

	if prefix := viper.GetString("cache.encrypted.prefix"); prefix != "" {
		if !strings.HasSuffix(prefix, ":") {
			return nil, fmt.Errorf("invalid cache prefix %q: must end with ':'", prefix)
		}
		config.Prefix = prefix
	}

	if viper.IsSet("cache.encrypted.hot_cache_size") {
		size := viper.GetInt("cache.encrypted.hot_cache_size")
		if size < 0 {
			return nil, fmt.Errorf("invalid hot cache size %d", size)
		}
		config.HotCacheSize = size
	}

	if keys := viper.GetStringSlice("cache.encrypted.legacy_keys"); len(keys) > 0 {
		config.LegacyKeys = keys
	}

	return config, nil
}

func (c *Config) statsKey() string {
	return c.Prefix + statsKeySuffix
}

func (c *Config) keySlot() string {
	return c.Prefix + keySlotSuffix
}

func (c *Config) pendingKeySlot() string {
	return c.Prefix + pendingSlotSuffix
}

func (c *Config) isReservedKey(physical string) bool {
	switch physical {
	case c.statsKey(), c.keySlot(), c.pendingKeySlot():
		return true
	}
	return false
}

func (c *Config) isLegacyKey(key string) bool {
	for _, k := range c.LegacyKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (c *Config) physicalKey(key string) string {
	return c.Prefix + key
}
