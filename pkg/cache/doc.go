// Package cache implements the device-local encrypted cache engine.
//
// The engine persists JSON-serializable values under string keys through a
// generic storage backend, encrypting each record at rest with AES-256-CBC.
// The symmetric key is protected by a platform secure store, with a
// degraded plaintext fallback when that store is unavailable. Reads
// tolerate every historical on-disk payload shape: current key-tagged
// envelopes, older untagged envelopes, bare base64 blobs, plaintext
// records, and bare legacy timestamps. Anything unreadable is evicted and
// reported as a miss, so callers can always recompute.
//
// The public façade is EncryptedCache: get/set/remove/clear with bulk
// variants, a periodic expiry sweep, persisted usage statistics, one-time
// migration of legacy entries, and two-phase key rotation.
package cache
