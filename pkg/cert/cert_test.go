package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCertDER(t *testing.T) []byte {
	t.Helper()
	tlsCert, err := SelfSigned("test-ca", nil, time.Hour)
	require.NoError(t, err)
	return tlsCert.Certificate[0]
}

func TestAcceptAllAuthorizer(t *testing.T) {
	auth := AcceptAllAuthorizer{}

	require.NoError(t, auth.AuthorizeCA(testCertDER(t)))

	err := auth.AuthorizeCA([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrCertUnparseable)
}

func TestPinnedAuthorizer(t *testing.T) {
	pinned := testCertDER(t)
	other := testCertDER(t)

	auth := NewPinnedAuthorizer(nil)
	auth.Pin(pinned)

	require.NoError(t, auth.AuthorizeCA(pinned))
	require.ErrorIs(t, auth.AuthorizeCA(other), ErrCertNotPinned)
	require.ErrorIs(t, auth.AuthorizeCA([]byte{0xff}), ErrCertUnparseable)
}

func TestCertPEMRoundTrip(t *testing.T) {
	der := testCertDER(t)
	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	decoded, err := DecodeCertPEM(EncodeCertPEM(parsed))
	require.NoError(t, err)
	assert.Equal(t, parsed.Raw, decoded.Raw)
}

func TestKeyPEMRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	decoded, err := DecodeKeyPEM(EncodeKeyPEM(key))
	require.NoError(t, err)
	assert.True(t, key.Equal(decoded))
}

func TestDecodePEMRejectsGarbage(t *testing.T) {
	_, err := DecodeCertPEM([]byte("not pem"))
	require.ErrorIs(t, err, ErrInvalidPEM)

	_, err = DecodeKeyPEM([]byte("not pem"))
	require.ErrorIs(t, err, ErrInvalidPEM)
}

func TestCertAndKeyFiles(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "service.crt")
	keyPath := filepath.Join(dir, "service.key")

	der := testCertDER(t)
	parsed, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	require.NoError(t, WriteCertFile(certPath, parsed))
	require.NoError(t, WriteKeyFile(keyPath, key))

	gotCert, err := ReadCertFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, parsed.Raw, gotCert.Raw)

	gotKey, err := ReadKeyFile(keyPath)
	require.NoError(t, err)
	assert.True(t, key.Equal(gotKey))
}

func TestSelfSignedCoversHosts(t *testing.T) {
	tlsCert, err := SelfSigned("mfr.example.com", []string{"mfr.example.com", "127.0.0.1"}, time.Hour)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(tlsCert.Certificate[0])
	require.NoError(t, err)
	assert.Contains(t, parsed.DNSNames, "mfr.example.com")
	require.Len(t, parsed.IPAddresses, 1)
	assert.Equal(t, "127.0.0.1", parsed.IPAddresses[0].String())
}
