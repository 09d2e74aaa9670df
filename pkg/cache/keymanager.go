package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/moneta-app/moneta-core/pkg/observability"
	"github.com/moneta-app/moneta-core/pkg/securestore"
	"github.com/moneta-app/moneta-core/pkg/security"
	"github.com/moneta-app/moneta-core/pkg/storage"
)

// secretName is the slot the key occupies in the platform secure store.
const secretName = "moneta.cache.master_key"

// Key is the active symmetric cache key together with its version tag.
// The tag is written into every envelope so records stay attributable to
// the key that sealed them across rotations.
type Key struct {
	ID       string
	Material []byte
}

type storedKey struct {
	KeyID string `json:"kid"`
	Key   string `json:"key"` // base64
}

// KeyManager obtains, generates, persists, and rotates the single cache
// encryption key. The secure store is preferred; when it is unavailable
// the key falls back to ordinary persistent storage and the installation
// runs in reduced-security mode, logged once.
type KeyManager struct {
	secrets  securestore.SecretStore
	fallback storage.Store
	config   *Config
	logger   observability.Logger

	mu       sync.Mutex
	active   *Key
	pending  *Key
	degraded bool

	degradedLogOnce sync.Once
}

// NewKeyManager creates a key manager over the given secure store and
// degraded-mode fallback storage.
func NewKeyManager(
	secrets securestore.SecretStore,
	fallback storage.Store,
	config *Config,
	logger observability.Logger,
) *KeyManager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NewLogger("cache.keys")
	}

	return &KeyManager{
		secrets:  secrets,
		fallback: fallback,
		config:   config,
		logger:   logger,
	}
}

// GetOrCreateKey returns the active key, generating and persisting a fresh
// 256-bit key on first use. Secure-random failure surfaces as
// security.ErrKeyGeneration; callers treat it as non-fatal and continue in
// plaintext mode.
func (km *KeyManager) GetOrCreateKey(ctx context.Context) (*Key, error) {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.getOrCreateLocked(ctx)
}

func (km *KeyManager) getOrCreateLocked(ctx context.Context) (*Key, error) {
	if km.active != nil {
		return km.active, nil
	}

	key, err := km.loadKey(ctx, secretName, km.config.keySlot())
	if err != nil {
		return nil, err
	}
	if key == nil {
		material, genErr := security.GenerateKey()
		if genErr != nil {
			return nil, genErr
		}
		key = &Key{ID: uuid.New().String(), Material: material}
		if err := km.persistKey(ctx, secretName, km.config.keySlot(), key); err != nil {
			return nil, err
		}
	}

	km.active = key

	// An interrupted rotation may have left a pending key behind; keep it
	// resolvable so records already re-encrypted under it stay readable.
	if km.pending == nil {
		if pending, err := km.loadKey(ctx, secretName+".pending", km.config.pendingKeySlot()); err == nil {
			km.pending = pending
		}
	}

	return km.active, nil
}

// Degraded reports whether the key lives in ordinary storage because the
// secure store was unavailable.
func (km *KeyManager) Degraded() bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.degraded
}

// KeyByID resolves a key-version tag read from an envelope. An empty tag
// resolves to the active key. A nil key with nil error means no key with
// that id exists anymore: the record is permanently unreadable.
func (km *KeyManager) KeyByID(ctx context.Context, id string) (*Key, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	if id == "" {
		return km.getOrCreateLocked(ctx)
	}

	// The active key may simply not be loaded yet.
	if km.active == nil {
		if _, err := km.getOrCreateLocked(ctx); err != nil {
			return nil, err
		}
	}

	if km.active != nil && km.active.ID == id {
		return km.active, nil
	}
	if km.pending != nil && km.pending.ID == id {
		return km.pending, nil
	}

	return nil, nil
}

// Rotate generates a new key and persists it to the pending slot only.
// The old key stays active until CommitRotation, so a crash mid-rotation
// leaves every record still readable.
func (km *KeyManager) Rotate(ctx context.Context) (oldKey, newKey *Key, err error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	active, err := km.getOrCreateLocked(ctx)
	if err != nil {
		return nil, nil, err
	}

	material, err := security.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	next := &Key{ID: uuid.New().String(), Material: material}
	if err := km.persistKey(ctx, secretName+".pending", km.config.pendingKeySlot(), next); err != nil {
		return nil, nil, err
	}

	km.pending = next
	return active, next, nil
}

// CommitRotation promotes the pending key to active and discards the old
// key. Callers invoke it only after every record has been re-encrypted.
func (km *KeyManager) CommitRotation(ctx context.Context, newKey *Key) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if km.pending == nil || km.pending.ID != newKey.ID {
		return fmt.Errorf("%w: commit for unknown pending key", ErrKeyUnavailable)
	}

	if err := km.persistKey(ctx, secretName, km.config.keySlot(), newKey); err != nil {
		return err
	}
	km.clearPendingSlot(ctx)

	km.active = newKey
	km.pending = nil
	return nil
}

// AbortRotation discards the pending key, leaving the old key active.
func (km *KeyManager) AbortRotation(ctx context.Context) {
	km.mu.Lock()
	defer km.mu.Unlock()

	km.clearPendingSlot(ctx)
	km.pending = nil
}

func (km *KeyManager) clearPendingSlot(ctx context.Context) {
	if km.degraded {
		if err := km.fallback.Remove(ctx, km.config.pendingKeySlot()); err != nil {
			km.logger.Warn("failed to clear pending key slot", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if err := km.secrets.DeleteSecret(ctx, secretName+".pending"); err != nil &&
		!errors.Is(err, securestore.ErrSecretNotFound) {
		km.logger.Warn("failed to clear pending key slot", map[string]interface{}{"error": err.Error()})
	}
}

// loadKey returns the stored key for the given slots, nil when no key has
// been persisted yet, or an error when neither backend is reachable.
func (km *KeyManager) loadKey(ctx context.Context, secret, slot string) (*Key, error) {
	if !km.degraded {
		data, err := km.secrets.GetSecret(ctx, secret)
		switch {
		case err == nil:
			return decodeStoredKey(data)
		case errors.Is(err, securestore.ErrSecretNotFound):
			return nil, nil
		default:
			km.enterDegradedMode(err)
		}
	}

	raw, err := km.fallback.Get(ctx, slot)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return decodeStoredKey([]byte(raw))
}

func (km *KeyManager) persistKey(ctx context.Context, secret, slot string, key *Key) error {
	data, err := json.Marshal(storedKey{
		KeyID: key.ID,
		Key:   base64.StdEncoding.EncodeToString(key.Material),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}

	if !km.degraded {
		err := km.secrets.SetSecret(ctx, secret, data)
		if err == nil {
			return nil
		}
		km.enterDegradedMode(err)
	}

	if err := km.fallback.Set(ctx, slot, string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return nil
}

func (km *KeyManager) enterDegradedMode(cause error) {
	km.degraded = true
	km.degradedLogOnce.Do(func() {
		km.logger.Warn("secure key store unavailable, falling back to plaintext key storage", map[string]interface{}{
			"error": cause.Error(),
		})
	})
}

func decodeStoredKey(data []byte) (*Key, error) {
	var sk storedKey
	if err := json.Unmarshal(data, &sk); err != nil {
		return nil, fmt.Errorf("%w: malformed stored key: %v", ErrKeyUnavailable, err)
	}

	material, err := base64.StdEncoding.DecodeString(sk.Key)
	if err != nil || len(material) != security.KeySize {
		return nil, fmt.Errorf("%w: malformed key material", ErrKeyUnavailable)
	}
	return &Key{ID: sk.KeyID, Material: material}, nil
}
