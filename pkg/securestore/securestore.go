// Package securestore abstracts the platform secure-secret storage used to
// protect the cache encryption key. Implementations hold a small number of
// named secrets and are allowed to be entirely unavailable (for example on
// dev builds without a hardware keystore), in which case every operation
// returns ErrUnavailable and callers fall back to ordinary storage.
package securestore

import (
	"context"
	"errors"
)

// ErrSecretNotFound is returned when the named secret does not exist
var ErrSecretNotFound = errors.New("secret not found")

// ErrUnavailable is returned when the secure store itself is inaccessible
var ErrUnavailable = errors.New("secure store unavailable")

// SecretStore holds named secrets in platform-protected storage
type SecretStore interface {
	GetSecret(ctx context.Context, name string) ([]byte, error)
	SetSecret(ctx context.Context, name string, value []byte) error
	DeleteSecret(ctx context.Context, name string) error
}
