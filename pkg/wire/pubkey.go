package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Public key algorithm tags.
const (
	// KeyAlgorithmRSA identifies an RSA public key.
	KeyAlgorithmRSA uint8 = 1
)

// Public key encoding tags.
const (
	// KeyEncodingModExp identifies the modulus/exponent encoding.
	KeyEncodingModExp uint8 = 3
)

// Composite framing tags.
const (
	// keyMessageTag marks a persisted public key composite.
	keyMessageTag uint8 = 4

	// keyVersionTag is the key encoding version (0.5).
	keyVersionTag uint8 = 5
)

// Public key codec errors.
var (
	// ErrInvalidKeyEncoding indicates the composite could not be decoded.
	ErrInvalidKeyEncoding = errors.New("invalid public key encoding")
)

// PublicKey is the wire representation of an asymmetric public key:
// algorithm and encoding tags plus big-endian modulus and exponent bytes.
// Immutable once decoded; backends materialize their own key objects from it.
type PublicKey struct {
	Algorithm uint8
	Encoding  uint8
	Modulus   []byte
	Exponent  []byte
}

// EncodePublicKey serializes a public key into the length-prefixed composite:
//
//	[ totalLength:2 | messageTag:1 | versionTag:1 | algorithm:1 | encoding:1 |
//	  modulusLength:2 | modulus | exponentLength:2 | exponent ]
//
// All integers are big-endian. The total length covers everything after the
// length field itself.
func EncodePublicKey(key PublicKey) ([]byte, error) {
	if len(key.Modulus) == 0 || len(key.Exponent) == 0 {
		return nil, fmt.Errorf("%w: empty modulus or exponent", ErrInvalidKeyEncoding)
	}
	if len(key.Modulus) > 0xffff || len(key.Exponent) > 0xffff {
		return nil, fmt.Errorf("%w: oversized key component", ErrInvalidKeyEncoding)
	}

	total := 4 + 2 + len(key.Modulus) + 2 + len(key.Exponent)
	if total > 0xffff {
		return nil, fmt.Errorf("%w: composite too large", ErrInvalidKeyEncoding)
	}

	buf := make([]byte, 0, 2+total)
	buf = binary.BigEndian.AppendUint16(buf, uint16(total))
	buf = append(buf, keyMessageTag, keyVersionTag, key.Algorithm, key.Encoding)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(key.Modulus)))
	buf = append(buf, key.Modulus...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(key.Exponent)))
	buf = append(buf, key.Exponent...)
	return buf, nil
}

// DecodePublicKey parses the length-prefixed composite produced by
// EncodePublicKey. All reads are bounds-checked against the declared lengths.
func DecodePublicKey(data []byte) (PublicKey, error) {
	r := byteReader{data: data}

	total, err := r.uint16()
	if err != nil {
		return PublicKey{}, err
	}
	if int(total) != len(data)-2 {
		return PublicKey{}, fmt.Errorf("%w: declared length %d, have %d bytes",
			ErrInvalidKeyEncoding, total, len(data)-2)
	}

	tags, err := r.take(4)
	if err != nil {
		return PublicKey{}, err
	}
	if tags[0] != keyMessageTag || tags[1] != keyVersionTag {
		return PublicKey{}, fmt.Errorf("%w: unexpected tags %d/%d",
			ErrInvalidKeyEncoding, tags[0], tags[1])
	}

	key := PublicKey{Algorithm: tags[2], Encoding: tags[3]}

	modLen, err := r.uint16()
	if err != nil {
		return PublicKey{}, err
	}
	key.Modulus, err = r.take(int(modLen))
	if err != nil {
		return PublicKey{}, err
	}

	expLen, err := r.uint16()
	if err != nil {
		return PublicKey{}, err
	}
	key.Exponent, err = r.take(int(expLen))
	if err != nil {
		return PublicKey{}, err
	}

	if r.remaining() != 0 {
		return PublicKey{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidKeyEncoding, r.remaining())
	}
	if len(key.Modulus) == 0 || len(key.Exponent) == 0 {
		return PublicKey{}, fmt.Errorf("%w: empty modulus or exponent", ErrInvalidKeyEncoding)
	}
	return key, nil
}

// byteReader is a bounded, length-tracked view over an input buffer.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) remaining() int {
	return len(r.data) - r.off
}

func (r *byteReader) take(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated at offset %d", ErrInvalidKeyEncoding, r.off)
	}
	out := r.data[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *byteReader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}
