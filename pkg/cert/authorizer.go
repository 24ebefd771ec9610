// Package cert holds the CA-authorization policy hook for attestation and
// the certificate/key file handling used by the commands.
package cert

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
)

var (
	// ErrCertUnparseable indicates the CA certificate DER is malformed.
	ErrCertUnparseable = errors.New("unparseable CA certificate")

	// ErrCertNotPinned indicates the CA certificate is not on the allow
	// list.
	ErrCertNotPinned = errors.New("CA certificate not pinned")
)

// Authorizer decides whether a CA certificate may anchor group-membership
// verification. The real policy belongs to a PKI outside this module.
type Authorizer interface {
	// AuthorizeCA accepts or rejects a DER-encoded CA certificate.
	AuthorizeCA(der []byte) error
}

// AcceptAllAuthorizer accepts any parseable CA certificate. It stands in
// where no PKI policy is configured.
type AcceptAllAuthorizer struct{}

// AuthorizeCA implements Authorizer. Only the certificate's shape is
// checked.
func (AcceptAllAuthorizer) AuthorizeCA(der []byte) error {
	if _, err := x509.ParseCertificate(der); err != nil {
		return fmt.Errorf("%w: %v", ErrCertUnparseable, err)
	}
	return nil
}

// PinnedAuthorizer accepts only CA certificates whose SHA-256 fingerprint
// is on its allow list.
type PinnedAuthorizer struct {
	fingerprints [][]byte
}

// NewPinnedAuthorizer creates an authorizer pinning the given SHA-256
// certificate fingerprints.
func NewPinnedAuthorizer(fingerprints [][]byte) *PinnedAuthorizer {
	return &PinnedAuthorizer{fingerprints: fingerprints}
}

// Pin adds a certificate's fingerprint to the allow list.
func (a *PinnedAuthorizer) Pin(der []byte) {
	sum := sha256.Sum256(der)
	a.fingerprints = append(a.fingerprints, sum[:])
}

// AuthorizeCA implements Authorizer.
func (a *PinnedAuthorizer) AuthorizeCA(der []byte) error {
	if _, err := x509.ParseCertificate(der); err != nil {
		return fmt.Errorf("%w: %v", ErrCertUnparseable, err)
	}

	sum := sha256.Sum256(der)
	for _, fp := range a.fingerprints {
		if bytes.Equal(fp, sum[:]) {
			return nil
		}
	}
	return ErrCertNotPinned
}
