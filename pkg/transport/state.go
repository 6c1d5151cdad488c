package transport

import (
	"net"

	"github.com/cfnet-project/cfnet-go/pkg/log"
)

// Role selects which side of the handshake a session plays.
type Role uint8

const (
	// RoleClient connects and expects the preamble.
	RoleClient Role = iota

	// RoleServer accepts and sends the preamble.
	RoleServer
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

func (r Role) logRole() log.Role {
	if r == RoleServer {
		return log.RoleServer
	}
	return log.RoleClient
}

// State is the lifecycle state of a Session.
type State int32

const (
	// StateNew is a session that has not been configured.
	StateNew State = iota

	// StateContextReady is a configured session that has not negotiated.
	StateContextReady

	// StateHandshaking indicates negotiation in progress.
	StateHandshaking

	// StateEstablished indicates an encrypted session ready for traffic.
	StateEstablished

	// StateFailed indicates a failed negotiation or a send that broke the
	// encrypted stream. The socket was not touched.
	StateFailed

	// StateClosed indicates the session was torn down.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateContextReady:
		return "CONTEXT_READY"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ProtocolKind is the protocol a connection currently speaks.
type ProtocolKind uint8

const (
	// ProtocolClassic is the unencrypted framed protocol.
	ProtocolClassic ProtocolKind = iota

	// ProtocolTLS is the encrypted protocol.
	ProtocolTLS
)

// String returns the protocol name.
func (p ProtocolKind) String() string {
	switch p {
	case ProtocolClassic:
		return "CLASSIC"
	case ProtocolTLS:
		return "TLS"
	default:
		return "UNKNOWN"
	}
}

// ConnectionInfo describes the connection a session is attached to.
type ConnectionInfo struct {
	// ID uniquely identifies the session in logs.
	ID string

	// Kind flips from ProtocolClassic to ProtocolTLS once established.
	Kind ProtocolKind

	// RemoteAddr is the peer address, if the socket has one.
	RemoteAddr string

	// Conn is the caller's socket. The session never closes it.
	Conn net.Conn
}

func remoteAddrString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
