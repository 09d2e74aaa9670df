package security

import (
	"crypto/aes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	cases := [][]byte{
		[]byte(`{"amount":1250,"currency":"EUR"}`),
		[]byte(""),
		[]byte("x"),
		[]byte(strings.Repeat("block-aligned-16", 64)),
	}

	for _, plaintext := range cases {
		envelope, err := Encrypt(plaintext, key)
		require.NoError(t, err)

		decrypted, err := Decrypt(envelope, key)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	plaintext := []byte("same plaintext")
	first, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	second, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	firstBlob, _ := base64.StdEncoding.DecodeString(first)
	secondBlob, _ := base64.StdEncoding.DecodeString(second)
	assert.NotEqual(t, firstBlob[:aes.BlockSize], secondBlob[:aes.BlockSize])
}

func TestDecrypt_Failures(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	envelope, err := Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	t.Run("wrong key", func(t *testing.T) {
		wrongKey, err := GenerateKey()
		require.NoError(t, err)

		_, err = Decrypt(envelope, wrongKey)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := Decrypt("%%%not-base64%%%", key)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("truncated blob", func(t *testing.T) {
		blob, decodeErr := base64.StdEncoding.DecodeString(envelope)
		require.NoError(t, decodeErr)

		_, err := Decrypt(base64.StdEncoding.EncodeToString(blob[:aes.BlockSize-1]), key)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("corrupted ciphertext", func(t *testing.T) {
		blob, decodeErr := base64.StdEncoding.DecodeString(envelope)
		require.NoError(t, decodeErr)
		blob[len(blob)-1] ^= 0xff

		_, err := Decrypt(base64.StdEncoding.EncodeToString(blob), key)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})
}

func TestIsEnvelopeBlob(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	envelope, err := Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	assert.True(t, IsEnvelopeBlob(envelope))
	assert.False(t, IsEnvelopeBlob("1699999999000"))
	assert.False(t, IsEnvelopeBlob(`{"plain":"json"}`))
	assert.False(t, IsEnvelopeBlob(base64.StdEncoding.EncodeToString([]byte("short"))))
}
