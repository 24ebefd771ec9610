package onboarding

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/odo-protocol/odo-go/pkg/attestation"
	"github.com/odo-protocol/odo-go/pkg/crypto"
	"github.com/odo-protocol/odo-go/pkg/device"
	"github.com/odo-protocol/odo-go/pkg/log"
	"github.com/odo-protocol/odo-go/pkg/transport"
	"github.com/odo-protocol/odo-go/pkg/wire"
)

const hmacSecretSize = 32

// DeviceConfig configures the device side of the exchange.
type DeviceConfig struct {
	// Identity supplies the device's serial number and model.
	Identity device.Identity

	// DeviceKey is the device public key announced in AppStart.
	DeviceKey wire.PublicKey

	// Attestation signs the AppStart payload.
	Attestation *attestation.Backend

	// Provider materializes the manufacturer's public key.
	Provider crypto.Provider

	// SigRL is the revocation list applied when signing. Nil uses the
	// list the attestation backend was initialized with.
	SigRL []byte

	// Logger receives protocol events. Nil disables logging.
	Logger log.Logger

	// Rand is the source for the HMAC secret. Nil uses crypto/rand.
	Rand io.Reader
}

// Device drives the client side of the exchange over one connection.
type Device struct {
	cfg     DeviceConfig
	conn    *transport.Conn
	session *Session

	offer SetCredentials
}

// NewDevice creates a device driver bound to conn. The connection is not
// closed by the driver; the caller owns it.
func NewDevice(conn *transport.Conn, cfg DeviceConfig) (*Device, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("%w: missing identity", ErrInvalidMessage)
	}
	if cfg.Attestation == nil || cfg.Provider == nil {
		return nil, fmt.Errorf("%w: missing crypto backends", ErrInvalidMessage)
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Reader
	}
	return &Device{
		cfg:     cfg,
		conn:    conn,
		session: NewSession(log.RoleDevice, cfg.Logger),
	}, nil
}

// Session exposes the driver's session, mainly for observing state.
func (d *Device) Session() *Session {
	return d.session
}

// Run executes the exchange to completion and returns the resulting
// credential. Any step failure aborts without advancing state and the
// session cannot be resumed. Sensitive session state is cleared on return.
func (d *Device) Run(ctx context.Context) (*DeviceCredential, error) {
	defer d.session.Zero()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"app-start", d.stepAppStart},
		{"set-credentials", d.stepSetCredentials},
		{"set-hmac", d.stepSetHMAC},
		{"done", d.stepDone},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := step.fn(); err != nil {
			err = fmt.Errorf("%s: %w", step.name, err)
			d.session.logError(err)
			return nil, err
		}
	}

	return d.buildCredential()
}

func (d *Device) stepAppStart() error {
	encodedKey, err := wire.EncodePublicKey(d.cfg.DeviceKey)
	if err != nil {
		return err
	}

	msg := &AppStart{
		SerialNumber: d.cfg.Identity.SerialNumber(),
		Model:        d.cfg.Identity.Model(),
		DeviceKey:    encodedKey,
	}

	payload, err := msg.SigningPayload()
	if err != nil {
		return err
	}
	msg.Signature, err = d.cfg.Attestation.Sign(payload, d.cfg.SigRL)
	if err != nil {
		return err
	}

	body, err := wire.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := d.conn.Send(wire.ProtocolVersion, MsgTypeAppStart, body); err != nil {
		return err
	}

	return d.session.advance(StateSetCredentials, "AppStart sent")
}

func (d *Device) stepSetCredentials() error {
	body, err := recvTyped(d.conn, MsgTypeSetCredentials)
	if err != nil {
		return err
	}

	var msg SetCredentials
	if err := wire.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.ProtocolVersion != wire.ProtocolVersion {
		return fmt.Errorf("%w: ownership header version %d", ErrVersionMismatch, msg.ProtocolVersion)
	}
	if len(msg.GUID) == 0 {
		return fmt.Errorf("%w: empty GUID", ErrInvalidMessage)
	}

	key, err := wire.DecodePublicKey(msg.ManufacturerKey)
	if err != nil {
		return err
	}
	if _, err := d.cfg.Provider.MaterializeKey(key.Modulus, key.Exponent); err != nil {
		return err
	}

	if msg.HashAlg != 0 {
		if _, err := crypto.NewHash(msg.HashAlg); err != nil {
			return err
		}
		d.session.hashAlg = msg.HashAlg
	}

	// The HMAC must cover the header bytes exactly as received.
	d.session.ownerHeader = make([]byte, len(body))
	copy(d.session.ownerHeader, body)
	d.offer = msg

	return d.session.advance(StateSetHMAC, "ownership header accepted")
}

func (d *Device) stepSetHMAC() error {
	secret := make([]byte, hmacSecretSize)
	if _, err := io.ReadFull(d.cfg.Rand, secret); err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrCryptoBackend, err)
	}

	newDigest, err := crypto.NewHash(d.session.hashAlg)
	if err != nil {
		return err
	}
	mac := hmac.New(newDigest, secret)
	mac.Write(d.session.ownerHeader)

	body, err := wire.Marshal(&SetHMAC{HMAC: mac.Sum(nil)})
	if err != nil {
		return err
	}
	if _, err := d.conn.Send(wire.ProtocolVersion, MsgTypeSetHMAC, body); err != nil {
		return err
	}

	d.session.hmacSecret = secret
	return d.session.advance(StateDone, "header HMAC sent")
}

func (d *Device) stepDone() error {
	body, err := recvTyped(d.conn, MsgTypeDone)
	if err != nil {
		return err
	}
	var msg Done
	if err := wire.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return d.session.advance(StateComplete, "exchange acknowledged")
}

func (d *Device) buildCredential() (*DeviceCredential, error) {
	newDigest, err := crypto.NewHash(d.session.hashAlg)
	if err != nil {
		return nil, err
	}
	h := newDigest()
	h.Write(d.offer.ManufacturerKey)

	secret := make([]byte, len(d.session.hmacSecret))
	copy(secret, d.session.hmacSecret)

	guid := make([]byte, len(d.offer.GUID))
	copy(guid, d.offer.GUID)

	return &DeviceCredential{
		GUID:                guid,
		Rendezvous:          d.offer.Rendezvous,
		ManufacturerKeyHash: h.Sum(nil),
		HMACSecret:          secret,
		HashAlg:             d.session.hashAlg,
	}, nil
}
