package securestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileSecretStore implements SecretStore with a JSON file restricted to
// owner read/write. It is the on-disk secure store for desktop builds
// where no platform keystore API exists.
type FileSecretStore struct {
	path string
	mu   sync.Mutex
}

// NewFileSecretStore creates a file-backed secret store at path
func NewFileSecretStore(path string) *FileSecretStore {
	return &FileSecretStore{path: path}
}

func (s *FileSecretStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	secrets := make(map[string]string)
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("%w: corrupt secret file: %v", ErrUnavailable, err)
	}
	return secrets, nil
}

func (s *FileSecretStore) save(secrets map[string]string) error {
	data, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// Write-then-rename so a crash never leaves a truncated secret file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetSecret retrieves a named secret
func (s *FileSecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return nil, err
	}

	encoded, ok := secrets[name]
	if !ok {
		return nil, ErrSecretNotFound
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: corrupt secret %q: %v", ErrUnavailable, name, err)
	}
	return value, nil
}

// SetSecret stores a named secret
func (s *FileSecretStore) SetSecret(ctx context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}

	secrets[name] = base64.StdEncoding.EncodeToString(value)
	return s.save(secrets)
}

// DeleteSecret removes a named secret
func (s *FileSecretStore) DeleteSecret(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	secrets, err := s.load()
	if err != nil {
		return err
	}

	delete(secrets, name)
	return s.save(secrets)
}
