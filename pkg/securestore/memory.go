package securestore

import (
	"context"
	"sync"
)

// MemorySecretStore implements SecretStore with an in-process map.
// Used in tests and as the backing for the passphrase-wrapped store.
type MemorySecretStore struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewMemorySecretStore creates a new in-memory secret store
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{
		secrets: make(map[string][]byte),
	}
}

// GetSecret retrieves a named secret
func (s *MemorySecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// SetSecret stores a named secret
func (s *MemorySecretStore) SetSecret(ctx context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.secrets[name] = stored
	return nil
}

// DeleteSecret removes a named secret
func (s *MemorySecretStore) DeleteSecret(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.secrets, name)
	return nil
}

// UnavailableSecretStore fails every operation with ErrUnavailable. It
// models platforms without a secure keystore.
type UnavailableSecretStore struct{}

// GetSecret implements SecretStore.GetSecret
func (s *UnavailableSecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	return nil, ErrUnavailable
}

// SetSecret implements SecretStore.SetSecret
func (s *UnavailableSecretStore) SetSecret(ctx context.Context, name string, value []byte) error {
	return ErrUnavailable
}

// DeleteSecret implements SecretStore.DeleteSecret
func (s *UnavailableSecretStore) DeleteSecret(ctx context.Context, name string) error {
	return ErrUnavailable
}
