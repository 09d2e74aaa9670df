package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "a", "1"))

	value, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", value)

	// Last write wins
	require.NoError(t, store.Set(ctx, "a", "2"))
	value, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", value)
}

func TestMemoryStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "a", "1"))
	require.NoError(t, store.Remove(ctx, "a"))

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	// Removing an absent key is not an error
	assert.NoError(t, store.Remove(ctx, "a"))
}

func TestMemoryStore_Bulk(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	entries := map[string]string{"a": "1", "b": "2", "c": "3"}
	require.NoError(t, store.MultiSet(ctx, entries))

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)

	result, err := store.MultiGet(ctx, []string{"a", "c", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, result)
}
