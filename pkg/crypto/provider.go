package crypto

import (
	"errors"
)

// HashAlg identifies a hash/padding combination for provider operations.
// Values follow the ODO public key hash type registry.
type HashAlg uint8

const (
	// HashSHA1 selects the legacy OAEP padding path.
	HashSHA1 HashAlg = 3

	// HashSHA256 selects OAEP with SHA-256.
	HashSHA256 HashAlg = 8

	// HashSHA384 selects OAEP with SHA-384.
	HashSHA384 HashAlg = 14
)

// String returns the hash algorithm name.
func (h HashAlg) String() string {
	switch h {
	case HashSHA1:
		return "SHA-1"
	case HashSHA256:
		return "SHA-256"
	case HashSHA384:
		return "SHA-384"
	default:
		return "UNKNOWN"
	}
}

// Provider errors.
var (
	// ErrInvalidKeyMaterial indicates empty or unusable key inputs.
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrBufferTooSmall indicates the caller-supplied buffer is smaller
	// than the required ciphertext length.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrUnsupportedHash indicates the hash/padding combination is not
	// implemented by the provider.
	ErrUnsupportedHash = errors.New("unsupported hash algorithm")

	// ErrCryptoBackend wraps failures inside the backing implementation.
	ErrCryptoBackend = errors.New("crypto backend failure")
)

// KeyHandle is a materialized asymmetric key owned by a provider.
type KeyHandle interface {
	// CipherLength returns the exact ciphertext size in bytes that an
	// Encrypt against this key produces (the modulus size).
	CipherLength() int
}

// Provider is the uniform crypto operation surface. Implementations are
// selected at construction time; all state is held by the provider object,
// never in package globals.
type Provider interface {
	// MaterializeKey builds a key object from externally supplied,
	// untrusted big-endian modulus and exponent bytes. Fails with
	// ErrInvalidKeyMaterial if either input is empty.
	MaterializeKey(modulus, exponent []byte) (KeyHandle, error)

	// Encrypt encrypts plaintext under key using the padding path selected
	// by hash. With out == nil it performs no encryption and returns the
	// required ciphertext length. With a non-nil out it fails with
	// ErrBufferTooSmall when cap is insufficient, ErrUnsupportedHash for
	// unimplemented hash selections, and ErrCryptoBackend (wrapped) on any
	// internal failure. Returns the number of ciphertext bytes.
	Encrypt(hash HashAlg, key KeyHandle, plaintext, out []byte) (int, error)
}
