package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) (*rsa.PrivateKey, KeyHandle, *RSAProvider) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	provider := NewRSAProvider(rand.Reader)
	key, err := provider.MaterializeKey(priv.N.Bytes(), big.NewInt(int64(priv.E)).Bytes())
	require.NoError(t, err)
	return priv, key, provider
}

func TestMaterializeKeyRejectsInvalidInput(t *testing.T) {
	provider := NewRSAProvider(rand.Reader)

	cases := []struct {
		name     string
		modulus  []byte
		exponent []byte
	}{
		{"empty modulus", nil, []byte{1, 0, 1}},
		{"empty exponent", []byte{0xab}, nil},
		{"tiny exponent", []byte{0xab}, []byte{2}},
		{"oversized exponent", []byte{0xab}, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := provider.MaterializeKey(tc.modulus, tc.exponent)
			require.ErrorIs(t, err, ErrInvalidKeyMaterial)
		})
	}
}

func TestEncryptQueryPhaseReturnsModulusSize(t *testing.T) {
	priv, key, provider := testKeyPair(t)

	n, err := provider.Encrypt(HashSHA256, key, []byte("plaintext"), nil)
	require.NoError(t, err)
	assert.Equal(t, priv.Size(), n)

	// A buffer of exactly that size succeeds.
	out := make([]byte, n)
	written, err := provider.Encrypt(HashSHA256, key, []byte("plaintext"), out)
	require.NoError(t, err)
	assert.Equal(t, n, written)
}

func TestEncryptBufferTooSmall(t *testing.T) {
	_, key, provider := testKeyPair(t)

	out := make([]byte, key.CipherLength()-1)
	_, err := provider.Encrypt(HashSHA256, key, []byte("plaintext"), out)
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestEncryptUnsupportedHash(t *testing.T) {
	_, key, provider := testKeyPair(t)

	out := make([]byte, key.CipherLength())
	_, err := provider.Encrypt(HashAlg(99), key, []byte("plaintext"), out)
	require.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestEncryptDecryptRoundTripSHA1(t *testing.T) {
	priv, key, provider := testKeyPair(t)
	plaintext := []byte("legacy path plaintext")

	out := make([]byte, key.CipherLength())
	n, err := provider.Encrypt(HashSHA1, key, plaintext, out)
	require.NoError(t, err)

	got, err := rsa.DecryptOAEP(sha1.New(), nil, priv, out[:n], nil)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptDecryptRoundTripSHA256(t *testing.T) {
	priv, key, provider := testKeyPair(t)
	plaintext := []byte("session key material")

	out := make([]byte, key.CipherLength())
	n, err := provider.Encrypt(HashSHA256, key, plaintext, out)
	require.NoError(t, err)
	require.Equal(t, key.CipherLength(), n)

	got, err := oaepDecrypt(sha256.New, sha256.New, priv, out[:n])
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptDecryptRoundTripSHA384(t *testing.T) {
	priv, key, provider := testKeyPair(t)
	plaintext := []byte("sha-384 plaintext")

	out := make([]byte, key.CipherLength())
	n, err := provider.Encrypt(HashSHA384, key, plaintext, out)
	require.NoError(t, err)

	got, err := oaepDecrypt(sha512.New384, sha512.New384, priv, out[:n])
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptOAEPDefaultMGFHash(t *testing.T) {
	priv, key, provider := testKeyPair(t)
	plaintext := []byte("default mgf")

	// MGFHash left unset defaults to SHA-256 even under a SHA-384 digest.
	ct, err := provider.EncryptOAEP(OAEPOptions{Hash: HashSHA384}, key.(*RSAKey), plaintext)
	require.NoError(t, err)

	got, err := oaepDecrypt(sha512.New384, sha256.New, priv, ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptPlaintextTooLong(t *testing.T) {
	_, key, provider := testKeyPair(t)

	long := make([]byte, key.CipherLength())
	out := make([]byte, key.CipherLength())
	_, err := provider.Encrypt(HashSHA256, key, long, out)
	require.ErrorIs(t, err, ErrCryptoBackend)
}
