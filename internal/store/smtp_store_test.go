package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return []byte(strings.Repeat("k", 32))
}

func TestNewSMTPStore_RejectsShortKey(t *testing.T) {
	_, err := NewSMTPStore(nil, []byte("too-short"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestSMTPStore_EncryptDecryptRoundTrip(t *testing.T) {
	store, err := NewSMTPStore(nil, testKey())
	require.NoError(t, err)

	sealed, err := store.encrypt([]byte("app-password-123"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "app-password-123")

	plain, err := store.decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "app-password-123", string(plain))
}

func TestSMTPStore_EncryptUsesFreshNonce(t *testing.T) {
	store, err := NewSMTPStore(nil, testKey())
	require.NoError(t, err)

	a, err := store.encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := store.encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSMTPStore_DecryptRejectsTampering(t *testing.T) {
	store, err := NewSMTPStore(nil, testKey())
	require.NoError(t, err)

	sealed, err := store.encrypt([]byte("secret"))
	require.NoError(t, err)

	other, err := NewSMTPStore(nil, []byte(strings.Repeat("x", 32)))
	require.NoError(t, err)
	_, err = other.decrypt(sealed)
	assert.Error(t, err)

	_, err = store.decrypt("not base64 at all!!!")
	assert.Error(t, err)
}
