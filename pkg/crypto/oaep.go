package crypto

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"
	"io"
	"math/big"

	"crypto/rsa"
)

// oaepEncrypt implements RSAES-OAEP (RFC 8017 §7.1.1) with independent
// digest and MGF1 hashes. The standard library's EncryptOAEP fixes the MGF1
// hash to the OAEP digest, which the protocol's padding contract does not.
func oaepEncrypt(newDigest, newMGF func() hash.Hash, random io.Reader, pub *rsa.PublicKey, msg []byte) ([]byte, error) {
	h := newDigest()
	k := (pub.N.BitLen() + 7) / 8
	hLen := h.Size()

	if len(msg) > k-2*hLen-2 {
		return nil, errors.New("message too long for key size")
	}

	// lHash over the empty label
	h.Write(nil)
	lHash := h.Sum(nil)

	em := make([]byte, k)
	seed := em[1 : 1+hLen]
	db := em[1+hLen:]

	copy(db, lHash)
	db[len(db)-len(msg)-1] = 1
	copy(db[len(db)-len(msg):], msg)

	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, fmt.Errorf("seed generation: %w", err)
	}

	mgf1XOR(db, newMGF(), seed)
	mgf1XOR(seed, newMGF(), db)

	m := new(big.Int).SetBytes(em)
	c := m.Exp(m, big.NewInt(int64(pub.E)), pub.N)

	out := make([]byte, k)
	return c.FillBytes(out), nil
}

// oaepDecrypt inverts oaepEncrypt. It exists for the round-trip contract
// and for verification in tests; the onboarding device never decrypts.
func oaepDecrypt(newDigest, newMGF func() hash.Hash, priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	h := newDigest()
	k := (priv.N.BitLen() + 7) / 8
	hLen := h.Size()

	if len(ciphertext) != k || k < 2*hLen+2 {
		return nil, errors.New("decryption error")
	}

	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(priv.N) >= 0 {
		return nil, errors.New("decryption error")
	}
	m := new(big.Int).Exp(c, priv.D, priv.N)

	em := make([]byte, k)
	m.FillBytes(em)

	firstByteIsZero := subtle.ConstantTimeByteEq(em[0], 0)

	seed := em[1 : 1+hLen]
	db := em[1+hLen:]

	mgf1XOR(seed, newMGF(), db)
	mgf1XOR(db, newMGF(), seed)

	h.Reset()
	h.Write(nil)
	lHash := h.Sum(nil)
	lHashOK := subtle.ConstantTimeCompare(db[:hLen], lHash)

	// Scan for the 0x01 delimiter without leaking its position early.
	var lookingFor, index, invalid = 1, 0, 0
	rest := db[hLen:]
	for i := 0; i < len(rest); i++ {
		equals0 := subtle.ConstantTimeByteEq(rest[i], 0)
		equals1 := subtle.ConstantTimeByteEq(rest[i], 1)
		index = subtle.ConstantTimeSelect(lookingFor&equals1, i, index)
		lookingFor = subtle.ConstantTimeSelect(equals1, 0, lookingFor)
		invalid = subtle.ConstantTimeSelect(lookingFor&^equals0, 1, invalid)
	}

	if firstByteIsZero&lHashOK&^invalid&^lookingFor != 1 {
		return nil, errors.New("decryption error")
	}
	return rest[index+1:], nil
}

// mgf1XOR XORs out with the MGF1 mask generated from seed (RFC 8017 §B.2.1).
func mgf1XOR(out []byte, h hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte

	done := 0
	for done < len(out) {
		h.Reset()
		h.Write(seed)
		h.Write(counter[:])
		digest = h.Sum(digest[:0])

		for i := 0; i < len(digest) && done < len(out); i++ {
			out[done] ^= digest[i]
			done++
		}

		for i := 3; i >= 0; i-- {
			counter[i]++
			if counter[i] != 0 {
				break
			}
		}
	}
}
