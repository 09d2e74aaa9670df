package cache

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the record shape written by this engine. Records with a
// newer version read back fine as long as the core fields are present; they
// are treated as migratable, never as corrupt.
const SchemaVersion = 2

// Record is the versioned envelope wrapping every cached value.
type Record struct {
	Data          json.RawMessage `json:"data"`
	CreatedAt     int64           `json:"createdAt"` // epoch milliseconds
	TTLMs         *int64          `json:"ttlMs,omitempty"`
	SchemaVersion int             `json:"schemaVersion"`
}

// Expired reports whether the record's TTL has elapsed at now.
// A record without a TTL never expires.
func (r *Record) Expired(now time.Time) bool {
	if r.TTLMs == nil {
		return false
	}
	expiresAt := time.UnixMilli(r.CreatedAt + *r.TTLMs)
	return now.After(expiresAt)
}

// looksLikeRecord reports whether a decoded JSON payload carries the
// record envelope fields, as opposed to being a bare pre-envelope value.
func (r *Record) looksLikeRecord() bool {
	return r.CreatedAt != 0 && r.Data != nil
}

// LegacyTimestamp is the normalized form of a bare numeric value stored
// under one of the known legacy keys.
type LegacyTimestamp struct {
	TS int64 `json:"ts"`
}

// Statistics is the aggregate counter set persisted alongside the cache.
// It is incremented on writes and cleanup and reset only by Clear.
type Statistics struct {
	TotalItems            int64 `json:"totalItems"`
	EncryptedItems        int64 `json:"encryptedItems"`
	PlaintextItems        int64 `json:"plaintextItems"`
	ExpiredItemsReclaimed int64 `json:"expiredItemsReclaimed"`
	LastCleanupAt         int64 `json:"lastCleanupAt,omitempty"` // epoch milliseconds
}

// Entry is one item of a bulk write.
type Entry struct {
	Key   string
	Value interface{}
	TTL   *time.Duration // nil means never expires
}

// RotationResult reports the outcome of a key rotation.
type RotationResult struct {
	Rotated int // records re-encrypted under the new key
	Skipped int // records that failed to decrypt and were left as-is
}
