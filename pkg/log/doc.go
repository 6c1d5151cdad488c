// Package log provides structured protocol logging for cfnet.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, ipc).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Components accept a Logger through their options:
//
//	// For development: log to console via slog
//	opts = append(opts, transport.WithProtocolLogger(log.NewSlogAdapter(slog.Default())))
//
//	// For production: write to binary file
//	fl, _ := log.NewFileLogger("/var/log/cfnet/probe.clog")
//
//	// Both: use MultiLogger
//	logger := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
//   - FrameEvent: raw bytes of a classic frame or local message
//   - MessageEvent: a decoded local message
//   - StateChangeEvent: TLS session and channel lifecycle
//   - HandleEvent: a descriptor handed to or received from a peer
//   - RetryEvent: a readiness wait that timed out and was retried
//   - ErrorEventData: failures at any layer
//
// # File Format
//
// Log files use CBOR encoding with .clog extension. The cfnet-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
