// Package transport provides the encrypted stream transport of cfnet.
//
// A Session turns a connected, caller-owned socket into a TLS stream in the
// client or server role. The socket is never closed by this package (except
// by Listener, which owns what it accepts).
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  opaque higher-level payload   │
//	├────────────────────────────────┤
//	│ TLS 1.2+ (after "ACK" preamble)│
//	├────────────────────────────────┤
//	│ readiness-gated socket adapter │
//	├────────────────────────────────┤
//	│             TCP                │
//	└────────────────────────────────┘
//
// # Preamble
//
// Before negotiating, the server sends a classic transaction on the plain
// socket: an 8-byte header (status byte, space, decimal length, NUL padding)
// followed by the body "ACK". Peers that only speak the classic protocol can
// parse and reject it; clients refuse to negotiate without it.
//
// # Bounded Retry
//
// Every socket step waits at most Policy.Timeout for readiness. A step that
// times out without progress is retried and costs one try; when the tries
// of the current operation (handshake, send or receive) are spent the
// operation fails. No call blocks longer than Tries x Timeout.
package transport
