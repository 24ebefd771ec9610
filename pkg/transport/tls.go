package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// TLS constants for the ODO protocol.
const (
	// ALPNProtocol is the ALPN identifier for ODO.
	ALPNProtocol = "odo/1"

	// DefaultPort is the default ODO onboarding service port.
	DefaultPort = 8040
)

// TLSConfig holds configuration for ODO TLS connections.
type TLSConfig struct {
	// Certificate is the TLS certificate for this endpoint.
	// Required for servers; optional for clients.
	Certificate tls.Certificate

	// RootCAs is the pool of trusted CA certificates for verifying the
	// manufacturer service.
	RootCAs *x509.CertPool

	// ServerName is the expected server name for client connections.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool
}

// NewClientTLSConfig creates a TLS configuration for a device connecting to
// an onboarding service.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    cfg.RootCAs,
		ServerName: cfg.ServerName,
		NextProtos: []string{ALPNProtocol},
	}
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}
	return tlsConfig, nil
}

// NewServerTLSConfig creates a TLS configuration for an onboarding service.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cfg.Certificate},
		NextProtos:   []string{ALPNProtocol},
	}, nil
}
