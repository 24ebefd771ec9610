package crypto

import (
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"math"
	"math/big"
)

// RSAKey is a materialized RSA public key.
type RSAKey struct {
	pub *rsa.PublicKey
}

// CipherLength returns the modulus size in bytes.
func (k *RSAKey) CipherLength() int {
	return (k.pub.N.BitLen() + 7) / 8
}

// OAEPOptions selects hashes for the SHA-256/SHA-384 OAEP path.
type OAEPOptions struct {
	// Hash is the OAEP digest.
	Hash HashAlg

	// MGFHash is the mask generation function digest.
	// Zero value defaults to SHA-256.
	MGFHash HashAlg
}

// RSAProvider implements Provider with RSA-OAEP encryption.
type RSAProvider struct {
	rand io.Reader
}

// NewRSAProvider creates an RSA provider drawing randomness from rand.
// Pass crypto/rand.Reader outside of tests.
func NewRSAProvider(rand io.Reader) *RSAProvider {
	return &RSAProvider{rand: rand}
}

// MaterializeKey builds an RSA public key from big-endian modulus and
// exponent bytes.
func (p *RSAProvider) MaterializeKey(modulus, exponent []byte) (KeyHandle, error) {
	if len(modulus) == 0 {
		return nil, fmt.Errorf("%w: empty modulus", ErrInvalidKeyMaterial)
	}
	if len(exponent) == 0 {
		return nil, fmt.Errorf("%w: empty exponent", ErrInvalidKeyMaterial)
	}

	e := new(big.Int).SetBytes(exponent)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > math.MaxInt32 {
		return nil, fmt.Errorf("%w: exponent out of range", ErrInvalidKeyMaterial)
	}

	n := new(big.Int).SetBytes(modulus)
	if n.Sign() <= 0 {
		return nil, fmt.Errorf("%w: zero modulus", ErrInvalidKeyMaterial)
	}

	return &RSAKey{pub: &rsa.PublicKey{N: n, E: int(e.Int64())}}, nil
}

// Encrypt implements the two-phase query/fill encryption contract.
func (p *RSAProvider) Encrypt(hashAlg HashAlg, key KeyHandle, plaintext, out []byte) (int, error) {
	rk, ok := key.(*RSAKey)
	if !ok || rk.pub == nil {
		return 0, fmt.Errorf("%w: not an RSA key handle", ErrInvalidKeyMaterial)
	}

	required := rk.CipherLength()
	if out == nil {
		// Query phase: report the required buffer size only.
		return required, nil
	}
	if len(out) < required {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, required, len(out))
	}

	var ciphertext []byte
	var err error
	switch hashAlg {
	case HashSHA1:
		// Legacy padding path kept for protocol compatibility.
		ciphertext, err = rsa.EncryptOAEP(sha1.New(), p.rand, rk.pub, plaintext, nil)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCryptoBackend, err)
		}
	case HashSHA256, HashSHA384:
		ciphertext, err = p.EncryptOAEP(OAEPOptions{Hash: hashAlg, MGFHash: hashAlg}, rk, plaintext)
		if err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedHash, hashAlg)
	}

	return copy(out, ciphertext), nil
}

// EncryptOAEP performs OAEP encryption with independently selectable digest
// and mask-generation-function hashes. An unset MGFHash defaults to SHA-256.
func (p *RSAProvider) EncryptOAEP(opts OAEPOptions, key *RSAKey, plaintext []byte) ([]byte, error) {
	h, err := newHash(opts.Hash)
	if err != nil {
		return nil, err
	}
	mgfAlg := opts.MGFHash
	if mgfAlg == 0 {
		mgfAlg = HashSHA256
	}
	mgf, err := newHash(mgfAlg)
	if err != nil {
		return nil, err
	}

	ciphertext, err := oaepEncrypt(h, mgf, p.rand, key.pub, plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoBackend, err)
	}
	return ciphertext, nil
}

// NewHash returns the constructor for a supported hash algorithm.
func NewHash(alg HashAlg) (func() hash.Hash, error) {
	return newHash(alg)
}

// newHash maps a HashAlg onto a hash constructor.
func newHash(alg HashAlg) (func() hash.Hash, error) {
	switch alg {
	case HashSHA1:
		return sha1.New, nil
	case HashSHA256:
		return sha256.New, nil
	case HashSHA384:
		return sha512.New384, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedHash, alg)
	}
}

// Compile-time interface satisfaction check.
var _ Provider = (*RSAProvider)(nil)
