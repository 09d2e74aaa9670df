package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss is returned by reads when the key is absent, expired,
	// or held an unreadable record. The three cases are deliberately
	// indistinguishable; callers must be able to recompute on miss.
	ErrCacheMiss = errors.New("cache miss")

	// ErrKeyUnavailable indicates the encryption key could not be obtained
	// from either the secure store or the degraded fallback.
	ErrKeyUnavailable = errors.New("encryption key unavailable")

	// ErrRotationInProgress is returned when a rotation is requested while
	// another one is still running.
	ErrRotationInProgress = errors.New("key rotation already in progress")

	// ErrCorruptedRecord marks a payload unparseable under every known
	// shape. It never escapes the façade; the record is evicted instead.
	ErrCorruptedRecord = errors.New("corrupted cache record")
)

// StorageError wraps a storage-backend failure. It is the only error kind
// the façade propagates to callers besides ErrCacheMiss and
// ErrRotationInProgress.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
