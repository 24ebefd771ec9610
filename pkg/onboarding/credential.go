package onboarding

import (
	"github.com/odo-protocol/odo-go/pkg/crypto"
)

// DeviceCredential is the durable outcome of a completed exchange. The
// device persists it and presents it during later ownership transfer.
type DeviceCredential struct {
	// GUID assigned by the manufacturer.
	GUID []byte `json:"guid"`

	// Rendezvous endpoints for later ownership transfer.
	Rendezvous []string `json:"rendezvous"`

	// ManufacturerKeyHash is the digest of the manufacturer public key
	// encoding, using HashAlg.
	ManufacturerKeyHash []byte `json:"manufacturerKeyHash"`

	// HMACSecret keys the HMAC the device sent in SetHMAC. It never
	// leaves the device.
	HMACSecret []byte `json:"hmacSecret"`

	// HashAlg is the negotiated hash algorithm.
	HashAlg crypto.HashAlg `json:"hashAlg"`
}

// Zero clears the credential's secret material.
func (c *DeviceCredential) Zero() {
	for i := range c.HMACSecret {
		c.HMACSecret[i] = 0
	}
	c.HMACSecret = nil
}
