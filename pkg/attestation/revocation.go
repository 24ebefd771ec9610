package attestation

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RevocationEntrySize is the size of one revocation list entry in bytes.
const RevocationEntrySize = 32

// ErrInvalidRevocationList indicates the revocation list bytes could not be
// parsed.
var ErrInvalidRevocationList = errors.New("invalid revocation list")

// RevocationList is a parsed signature revocation list.
type RevocationList struct {
	Entries [][]byte
}

// ParseRevocationList parses the wire form of a revocation list: a 4-byte
// big-endian entry count followed by count fixed-size entries. Nil or empty
// input yields an empty list.
func ParseRevocationList(data []byte) (*RevocationList, error) {
	if len(data) == 0 {
		return &RevocationList{}, nil
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: truncated count", ErrInvalidRevocationList)
	}

	count := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if len(body) != int(count)*RevocationEntrySize {
		return nil, fmt.Errorf("%w: %d entries declared, %d bytes of entries",
			ErrInvalidRevocationList, count, len(body))
	}

	list := &RevocationList{Entries: make([][]byte, count)}
	for i := range list.Entries {
		list.Entries[i] = body[i*RevocationEntrySize : (i+1)*RevocationEntrySize]
	}
	return list, nil
}

// EncodeRevocationList serializes a revocation list to its wire form.
// Entries must be exactly RevocationEntrySize bytes each.
func EncodeRevocationList(entries [][]byte) ([]byte, error) {
	buf := make([]byte, 4, 4+len(entries)*RevocationEntrySize)
	binary.BigEndian.PutUint32(buf, uint32(len(entries)))
	for i, e := range entries {
		if len(e) != RevocationEntrySize {
			return nil, fmt.Errorf("%w: entry %d has %d bytes", ErrInvalidRevocationList, i, len(e))
		}
		buf = append(buf, e...)
	}
	return buf, nil
}
