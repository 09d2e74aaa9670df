// Package storage defines the generic string-keyed persistent store the
// cache engine writes through, together with the bundled implementations.
// The store is last-write-wins per key and assumes no transactional
// guarantees across keys.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is not found in the store
var ErrNotFound = errors.New("key not found in store")

// Store defines the persistent key/value storage operations the cache
// engine depends on. Values are opaque strings owned by the caller.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)
	MultiSet(ctx context.Context, entries map[string]string) error
	Close() error
}
