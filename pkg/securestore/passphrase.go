package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	wrapSaltSize = 32
	wrapKeyIter  = 10000
	wrapKeySize  = 32
)

// PassphraseSecretStore wraps another SecretStore and encrypts every
// secret with a key derived from a device passphrase. Secrets are stored
// as salt ‖ nonce ‖ ciphertext under AES-256-GCM; a fresh salt is drawn
// per write so the derived key differs between writes.
type PassphraseSecretStore struct {
	backend    SecretStore
	passphrase []byte
}

// NewPassphraseSecretStore wraps backend with passphrase-derived encryption
func NewPassphraseSecretStore(backend SecretStore, passphrase string) *PassphraseSecretStore {
	hash := sha256.Sum256([]byte(passphrase))
	return &PassphraseSecretStore{
		backend:    backend,
		passphrase: hash[:],
	}
}

func (s *PassphraseSecretStore) deriveKey(name string, salt []byte) []byte {
	info := append(append([]byte{}, s.passphrase...), []byte(name)...)
	return pbkdf2.Key(info, salt, wrapKeyIter, wrapKeySize, sha256.New)
}

func (s *PassphraseSecretStore) wrap(name string, value []byte) ([]byte, error) {
	salt := make([]byte, wrapSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	block, err := aes.NewCipher(s.deriveKey(name, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, value, nil)

	wrapped := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	wrapped = append(wrapped, salt...)
	wrapped = append(wrapped, nonce...)
	wrapped = append(wrapped, ciphertext...)
	return wrapped, nil
}

func (s *PassphraseSecretStore) unwrap(name string, wrapped []byte) ([]byte, error) {
	if len(wrapped) < wrapSaltSize+12 {
		return nil, fmt.Errorf("wrapped secret too short")
	}

	salt := wrapped[:wrapSaltSize]
	rest := wrapped[wrapSaltSize:]

	block, err := aes.NewCipher(s.deriveKey(name, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("wrapped secret missing nonce")
	}

	plaintext, err := gcm.Open(nil, rest[:nonceSize], rest[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap secret: %w", err)
	}
	return plaintext, nil
}

// GetSecret retrieves and unwraps a named secret
func (s *PassphraseSecretStore) GetSecret(ctx context.Context, name string) ([]byte, error) {
	wrapped, err := s.backend.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}

	value, err := s.unwrap(name, wrapped)
	if err != nil {
		// A secret we cannot unwrap is as good as an inaccessible store:
		// the caller must not mistake it for a usable key.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return value, nil
}

// SetSecret wraps and stores a named secret
func (s *PassphraseSecretStore) SetSecret(ctx context.Context, name string, value []byte) error {
	wrapped, err := s.wrap(name, value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.backend.SetSecret(ctx, name, wrapped)
}

// DeleteSecret removes a named secret
func (s *PassphraseSecretStore) DeleteSecret(ctx context.Context, name string) error {
	return s.backend.DeleteSecret(ctx, name)
}
