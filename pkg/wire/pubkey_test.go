package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyRoundTrip(t *testing.T) {
	key := PublicKey{
		Algorithm: KeyAlgorithmRSA,
		Encoding:  KeyEncodingModExp,
		Modulus:   make([]byte, 256),
		Exponent:  []byte{0x01, 0x00, 0x01},
	}
	key.Modulus[0] = 0xa2
	key.Modulus[255] = 0xdf

	data, err := EncodePublicKey(key)
	require.NoError(t, err)

	decoded, err := DecodePublicKey(data)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestEncodePublicKeyRejectsEmptyComponents(t *testing.T) {
	_, err := EncodePublicKey(PublicKey{Modulus: nil, Exponent: []byte{1}})
	require.ErrorIs(t, err, ErrInvalidKeyEncoding)

	_, err = EncodePublicKey(PublicKey{Modulus: []byte{1}, Exponent: nil})
	require.ErrorIs(t, err, ErrInvalidKeyEncoding)
}

func TestDecodePublicKeyMalformed(t *testing.T) {
	valid, err := EncodePublicKey(PublicKey{
		Algorithm: KeyAlgorithmRSA,
		Encoding:  KeyEncodingModExp,
		Modulus:   []byte{1, 2, 3},
		Exponent:  []byte{1, 0, 1},
	})
	require.NoError(t, err)

	t.Run("truncated", func(t *testing.T) {
		for i := 1; i < len(valid); i++ {
			_, err := DecodePublicKey(valid[:i])
			assert.ErrorIs(t, err, ErrInvalidKeyEncoding, "prefix length %d", i)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		_, err := DecodePublicKey(append(append([]byte{}, valid...), 0xff))
		require.ErrorIs(t, err, ErrInvalidKeyEncoding)
	})

	t.Run("wrong tag", func(t *testing.T) {
		bad := append([]byte{}, valid...)
		bad[2] = 9 // message tag
		_, err := DecodePublicKey(bad)
		require.ErrorIs(t, err, ErrInvalidKeyEncoding)
	})

	t.Run("declared length mismatch", func(t *testing.T) {
		bad := append([]byte{}, valid...)
		bad[1]++
		_, err := DecodePublicKey(bad)
		require.ErrorIs(t, err, ErrInvalidKeyEncoding)
	})
}
