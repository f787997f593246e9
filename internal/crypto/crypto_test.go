package crypto

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewEncryptor_InvalidKeySize(t *testing.T) {
	_, err := NewEncryptor([]byte("too short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	plaintext := "EwBgA8l6BAAUAOyDv0l6PcCVu89kmzvqZmkWABk"

	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncryptor_EmptyString(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestEncryptor_UniqueNonces(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	first, err := enc.Encrypt("same input")
	require.NoError(t, err)
	second, err := enc.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestEncryptor_WrongKeyFails(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("secret")
	require.NoError(t, err)

	otherKey := testKey(t)
	otherKey[0] ^= 0xFF
	other, err := NewEncryptor(otherKey)
	require.NoError(t, err)

	_, err = other.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptor_TamperedCiphertext(t *testing.T) {
	enc, err := NewEncryptor(testKey(t))
	require.NoError(t, err)

	_, err = enc.Decrypt(base64.StdEncoding.EncodeToString([]byte("x")))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestGenerateKey(t *testing.T) {
	encoded, err := GenerateKey()
	require.NoError(t, err)

	key, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	_, err = NewEncryptorFromBase64(encoded)
	assert.NoError(t, err)
}

func TestResolveKey_ExplicitWins(t *testing.T) {
	key, err := ResolveKey("explicit-key", filepath.Join(t.TempDir(), "keyfile"))
	require.NoError(t, err)
	assert.Equal(t, "explicit-key", key)
}

func TestResolveKey_GeneratesAndPersists(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "keyfile")

	first, err := ResolveKey("", keyFile)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	// Key file should be readable only by the owner
	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Second resolution reuses the saved key
	second, err := ResolveKey("", keyFile)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
