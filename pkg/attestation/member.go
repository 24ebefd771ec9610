package attestation

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/odo-protocol/odo-go/pkg/wire"
)

// memberContext holds the per-member signing state. Precomputed backends
// keep one alive across signatures; fresh-per-sign backends build and
// destroy one per call.
type memberContext struct {
	key       ed25519.PrivateKey
	pub       ed25519.PublicKey
	pseudonym []byte
}

// precompBlob is the serialized precomputation state. Rebuilding the
// pseudonym is the expensive part of member setup on constrained targets,
// so it is persisted between boots.
type precompBlob struct {
	PublicKey []byte `cbor:"1,keyasint"`
	Pseudonym []byte `cbor:"2,keyasint"`
}

func newMemberContext(groupKey []byte, key ed25519.PrivateKey, precomp []byte) (*memberContext, error) {
	m := &memberContext{
		key: key,
		pub: key.Public().(ed25519.PublicKey),
	}

	if len(precomp) > 0 {
		var blob precompBlob
		if err := wire.Unmarshal(precomp, &blob); err != nil {
			return nil, fmt.Errorf("decode precomputation blob: %w", err)
		}
		if !m.pub.Equal(ed25519.PublicKey(blob.PublicKey)) {
			return nil, fmt.Errorf("%w: precomputation blob belongs to a different member key", ErrInvalidKeyMaterial)
		}
		m.pseudonym = blob.Pseudonym
		return m, nil
	}

	mac := hmac.New(sha256.New, groupKey)
	mac.Write(m.pub)
	m.pseudonym = mac.Sum(nil)
	return m, nil
}

// writePrecomp serializes the member's precomputation state.
func (m *memberContext) writePrecomp() ([]byte, error) {
	return wire.Marshal(&precompBlob{
		PublicKey: m.pub,
		Pseudonym: m.pseudonym,
	})
}

// sign writes the group signature over data into out, which must be at
// least SignatureLength(len(rl.Entries)) bytes. The base signature is
// followed by one non-revocation proof per revocation list entry.
func (m *memberContext) sign(newDigest func() hash.Hash, data []byte, rl *RevocationList, out []byte) {
	copy(out, ed25519.Sign(m.key, data))

	if len(rl.Entries) == 0 {
		return
	}

	h := newDigest()
	h.Write(data)
	digest := h.Sum(nil)

	for i, entry := range rl.Entries {
		mac := hmac.New(sha256.New, m.pseudonym)
		mac.Write(entry)
		mac.Write(digest)
		copy(out[SignatureBaseSize+i*RevocationProofSize:], mac.Sum(nil))
	}
}

// destroy zeroizes the member's key material.
func (m *memberContext) destroy() {
	for i := range m.key {
		m.key[i] = 0
	}
	for i := range m.pseudonym {
		m.pseudonym[i] = 0
	}
	m.key = nil
	m.pseudonym = nil
}

// MemberPublicKey expands privateKey the way Init does and returns the
// member's verification key. Intended for verifier tooling and tests;
// deployed verifiers work from group-level key material instead.
func MemberPublicKey(groupKey, privateKey []byte) (ed25519.PublicKey, error) {
	switch len(privateKey) {
	case FullKeySize:
		return ed25519.PrivateKey(privateKey).Public().(ed25519.PublicKey), nil
	case CompressedKeySize:
		key, err := decompressPrivateKey(groupKey, privateKey)
		if err != nil {
			return nil, err
		}
		return key.Public().(ed25519.PublicKey), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKeySize, len(privateKey))
	}
}

// decompressPrivateKey expands a compressed member private key into the
// full signing key. Expansion is deterministic and bound to the group
// public key, so the same compressed key always yields the same member.
func decompressPrivateKey(groupKey, compressed []byte) (ed25519.PrivateKey, error) {
	r := hkdf.New(sha256.New, compressed, groupKey, []byte("member key expansion"))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("key expansion: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}
