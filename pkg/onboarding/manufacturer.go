package onboarding

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odo-protocol/odo-go/pkg/attestation"
	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/log"
	"github.com/odo-protocol/odo-go/pkg/transport"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

// ManufacturerConfig configures the server side of the exchange.
type ManufacturerConfig struct {
	// Key is the manufacturer public key sent in SetCredentials.
	Key wire.PublicKey

	// Rendezvous endpoints handed to every device.
	Rendezvous []string

	// Hash is the algorithm devices must use for their HMAC. Zero value
	// is SHA-256.
	Hash crypto.HashAlg

	// VerifySignature checks the AppStart group signature against the
	// provisioning group. Nil skips verification beyond shape checks;
	// real deployments verify against the group public key and
	// revocation list.
	VerifySignature func(payload, signature []byte) error

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger
}

// DeviceRecord is the manufacturer's durable outcome of one exchange: the
// material needed to assemble an ownership voucher for the device.
type DeviceRecord struct {
	GUID         []byte
	SerialNumber string
	Model        string

	// DeviceKey is the device public key encoding from AppStart.
	DeviceKey []byte

	// OwnerHeader is the SetCredentials body as sent to the device.
	OwnerHeader []byte

	// HMAC is the device's binding over OwnerHeader.
	HMAC []byte
}

// Manufacturer runs the server side of exchanges. One Manufacturer serves
// many sessions; each Serve call is independent.
type Manufacturer struct {
	cfg        ManufacturerConfig
	encodedKey []byte
}

// NewManufacturer creates a manufacturer engine.
func NewManufacturer(cfg ManufacturerConfig) (*Manufacturer, error) {
	if cfg.Hash == 0 {
		cfg.Hash = crypto.HashSHA256
	}
	if _, err := crypto.NewHash(cfg.Hash); err != nil {
		return nil, err
	}

	encodedKey, err := wire.EncodePublicKey(cfg.Key)
	if err != nil {
		return nil, err
	}
	return &Manufacturer{cfg: cfg, encodedKey: encodedKey}, nil
}

// Serve runs one full exchange on conn and returns the device record. The
// caller owns the connection.
func (m *Manufacturer) Serve(ctx context.Context, conn *transport.Conn) (*DeviceRecord, error) {
	session := NewSession(log.RoleManufacturer, m.cfg.Logger)
	defer session.Zero()

	record := &DeviceRecord{}

	steps := []struct {
		name string
		fn   func(*Session, *transport.Conn, *DeviceRecord) error
	}{
		{"app-start", m.stepAppStart},
		{"set-credentials", m.stepSetCredentials},
		{"set-hmac", m.stepSetHMAC},
		{"done", m.stepDone},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.fn(session, conn, record); err != nil {
			err = fmt.Errorf("%s: %w", step.name, err)
			session.logError(err)
			return nil, err
		}
	}

	return record, nil
}

func (m *Manufacturer) stepAppStart(session *Session, conn *transport.Conn, record *DeviceRecord) error {
	body, err := recvTyped(conn, MsgTypeAppStart)
	if err != nil {
		return err
	}

	var msg AppStart
	if err := wire.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.SerialNumber == "" {
		return fmt.Errorf("%w: empty serial number", ErrInvalidMessage)
	}
	if _, err := wire.DecodePublicKey(msg.DeviceKey); err != nil {
		return err
	}

	// Group signatures carry one proof per revocation entry, so only the
	// shape is checked here.
	if len(msg.Signature) < attestation.SignatureBaseSize ||
		(len(msg.Signature)-attestation.SignatureBaseSize)%attestation.RevocationProofSize != 0 {
		return fmt.Errorf("%w: signature length %d", ErrInvalidMessage, len(msg.Signature))
	}

	if m.cfg.VerifySignature != nil {
		payload, err := msg.SigningPayload()
		if err != nil {
			return err
		}
		if err := m.cfg.VerifySignature(payload, msg.Signature); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}

	record.SerialNumber = msg.SerialNumber
	record.Model = msg.Model
	record.DeviceKey = msg.DeviceKey

	return session.advance(StateSetCredentials, "AppStart accepted")
}

func (m *Manufacturer) stepSetCredentials(session *Session, conn *transport.Conn, record *DeviceRecord) error {
	guid := uuid.New()

	offer := &SetCredentials{
		ProtocolVersion: wire.ProtocolVersion,
		GUID:            guid[:],
		Rendezvous:      m.cfg.Rendezvous,
		ManufacturerKey: m.encodedKey,
		HashAlg:         m.cfg.Hash,
	}
	body, err := wire.Marshal(offer)
	if err != nil {
		return err
	}
	if _, err := conn.Send(wire.ProtocolVersion, MsgTypeSetCredentials, body); err != nil {
		return err
	}

	record.GUID = guid[:]
	record.OwnerHeader = body

	return session.advance(StateSetHMAC, "ownership header sent")
}

func (m *Manufacturer) stepSetHMAC(session *Session, conn *transport.Conn, record *DeviceRecord) error {
	body, err := recvTyped(conn, MsgTypeSetHMAC)
	if err != nil {
		return err
	}

	var msg SetHMAC
	if err := wire.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if len(msg.HMAC) == 0 {
		return fmt.Errorf("%w: empty HMAC", ErrInvalidMessage)
	}

	record.HMAC = msg.HMAC
	return session.advance(StateDone, "header HMAC stored")
}

func (m *Manufacturer) stepDone(session *Session, conn *transport.Conn, record *DeviceRecord) error {
	body, err := wire.Marshal(&Done{})
	if err != nil {
		return err
	}
	if _, err := conn.Send(wire.ProtocolVersion, MsgTypeDone, body); err != nil {
		return err
	}

	return session.advance(StateComplete, "exchange acknowledged")
}

func recvTyped(conn *transport.Conn, wantType uint32) ([]byte, error) {
	protVer, msgType, body, err := conn.RecvMessage()
	if err != nil {
		return nil, err
	}
	if protVer != wire.ProtocolVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, protVer, wire.ProtocolVersion)
	}
	if msgType != wantType {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedMessage, msgType, wantType)
	}
	return body, nil
}
