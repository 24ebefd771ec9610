package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the onboarding session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this is a device or a manufacturer service.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// DeviceSerial is the device serial number, when known.
	DeviceSerial string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"` // Protocol state
	Crypto      *CryptoEvent      `cbor:"12,keyasint,omitempty"` // Crypto/attestation ops
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer identifies where in the stack an event was captured.
type Layer uint8

const (
	// LayerTransport covers header/body frames on the wire.
	LayerTransport Layer = 1
	// LayerProtocol covers onboarding message steps and state transitions.
	LayerProtocol Layer = 2
	// LayerCrypto covers provider and attestation operations.
	LayerCrypto Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerCrypto:
		return "CRYPTO"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage is a sent or received protocol message.
	CategoryMessage Category = 1
	// CategoryState is a state transition.
	CategoryState Category = 2
	// CategoryError is a failure at any layer.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which end of the protocol produced the event.
type Role uint8

const (
	// RoleDevice is the device (client) side.
	RoleDevice Role = 1
	// RoleManufacturer is the manufacturer service (server) side.
	RoleManufacturer Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleDevice:
		return "DEVICE"
	case RoleManufacturer:
		return "MANUFACTURER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a transport-layer frame (header plus body).
type FrameEvent struct {
	// ProtocolVersion from the frame header.
	ProtocolVersion uint32 `cbor:"1,keyasint"`

	// MessageType from the frame header.
	MessageType uint32 `cbor:"2,keyasint"`

	// Size is the body length in bytes.
	Size int `cbor:"3,keyasint"`

	// Data is the body content, possibly truncated.
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates Data was cut to the logging limit.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures a session state transition.
type StateChangeEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// Reason optionally explains the transition.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// CryptoEvent captures a crypto provider or attestation operation.
type CryptoEvent struct {
	// Operation names the operation (e.g. "sign", "encrypt", "materialize-key").
	Operation string `cbor:"1,keyasint"`

	// OutputSize is the produced ciphertext/signature length in bytes.
	OutputSize int `cbor:"2,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Message is the error text.
	Message string `cbor:"1,keyasint"`
}
