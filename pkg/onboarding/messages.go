package onboarding

import (
	"errors"

	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

// Message types of the device-initialization exchange.
const (
	MsgTypeAppStart       uint32 = 10
	MsgTypeSetCredentials uint32 = 11
	MsgTypeSetHMAC        uint32 = 12
	MsgTypeDone           uint32 = 13
)

var (
	ErrUnexpectedMessage = errors.New("unexpected message type")
	ErrVersionMismatch   = errors.New("protocol version mismatch")
	ErrInvalidMessage    = errors.New("invalid message")
)

// AppStart announces the device to the manufacturer service. The signature
// is a group signature over SigningPayload, proving membership in the
// device's provisioning group without identifying the member.
type AppStart struct {
	SerialNumber string `cbor:"1,keyasint"`
	Model        string `cbor:"2,keyasint"`

	// DeviceKey is the device public key in the length-prefixed composite
	// encoding of wire.EncodePublicKey.
	DeviceKey []byte `cbor:"3,keyasint"`

	Signature []byte `cbor:"4,keyasint"`
}

// appStartPayload is the signed portion of AppStart.
type appStartPayload struct {
	SerialNumber string `cbor:"1,keyasint"`
	Model        string `cbor:"2,keyasint"`
	DeviceKey    []byte `cbor:"3,keyasint"`
}

// SigningPayload returns the deterministic byte string the AppStart
// signature covers.
func (m *AppStart) SigningPayload() ([]byte, error) {
	return wire.Marshal(&appStartPayload{
		SerialNumber: m.SerialNumber,
		Model:        m.Model,
		DeviceKey:    m.DeviceKey,
	})
}

// SetCredentials carries the ownership header from the manufacturer. The
// device binds itself to the header bytes as received, so field order on
// the wire matters; the canonical codec keeps encoding deterministic.
type SetCredentials struct {
	ProtocolVersion uint32 `cbor:"1,keyasint"`

	// GUID is the device's new globally unique identifier, assigned by
	// the manufacturer.
	GUID []byte `cbor:"2,keyasint"`

	// Rendezvous lists the endpoints the device contacts for later
	// ownership transfer.
	Rendezvous []string `cbor:"3,keyasint"`

	// ManufacturerKey is the manufacturer public key in the
	// length-prefixed composite encoding.
	ManufacturerKey []byte `cbor:"4,keyasint"`

	// HashAlg is the hash the device must use for its HMAC.
	HashAlg crypto.HashAlg `cbor:"5,keyasint"`
}

// SetHMAC carries the device's HMAC over the ownership header bytes,
// keyed with a secret the device keeps. The manufacturer stores the HMAC
// in the ownership voucher; only the device can later verify it.
type SetHMAC struct {
	HMAC []byte `cbor:"1,keyasint"`
}

// Done acknowledges credential installation and ends the exchange.
type Done struct{}
