// Package log provides structured protocol logging for ODO.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, protocol, crypto).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging onboarding runs.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/odo/device.olog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/odo/device.olog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: header/body frames (FrameEvent)
//   - Protocol: session state transitions (StateChangeEvent)
//   - Crypto/Attestation: signing and encryption operations (CryptoEvent)
//
// Errors at any layer carry a dedicated payload (ErrorEventData).
//
// # File Format
//
// Log files use CBOR encoding with .olog extension, one event record per
// CBOR data item.
package log
