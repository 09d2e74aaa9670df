// Package security provides the symmetric cipher codec for cache payloads
// and generation of the cache encryption key.
//
// The codec is confidentiality-only: AES-256-CBC with PKCS#7 padding and
// no authentication tag, matching the historical on-disk format the cache
// must keep reading. The IV is stored inline ahead of the ciphertext;
// security depends on IV uniqueness per write, not on IV secrecy.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (256-bit)
const KeySize = 32

// ErrEncryptionFailed is returned when a payload cannot be encrypted
var ErrEncryptionFailed = errors.New("encryption failed")

// ErrDecryptionFailed is returned on key mismatch, bad padding, or corrupted bytes
var ErrDecryptionFailed = errors.New("decryption failed")

// ErrKeyGeneration is returned when secure random generation is unavailable
var ErrKeyGeneration = errors.New("key generation failed")

// GenerateKey creates a cryptographically secure 256-bit key
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	return key, nil
}

// Encrypt encrypts plaintext under key with a fresh random IV and returns
// base64(IV ‖ ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	blob := make([]byte, 0, len(iv)+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. It returns ErrDecryptionFailed on any key
// mismatch, padding error, or corrupted input.
func Decrypt(envelope string, key []byte) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecryptionFailed, err)
	}

	if len(blob) < aes.BlockSize || len(blob)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: invalid blob length %d", ErrDecryptionFailed, len(blob))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	iv := blob[:aes.BlockSize]
	ciphertext := blob[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: empty ciphertext", ErrDecryptionFailed)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return unpadded, nil
}

// IsEnvelopeBlob reports whether raw plausibly holds base64(IV ‖ ciphertext):
// valid standard base64 decoding to a non-trivial whole number of blocks.
func IsEnvelopeBlob(raw string) bool {
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return false
	}
	return len(blob) >= 2*aes.BlockSize && len(blob)%aes.BlockSize == 0
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", padLen)
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-padLen], nil
}
