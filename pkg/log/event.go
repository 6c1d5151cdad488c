package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the channel or session (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates which end of the channel logged the event.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (IP:port or socket path).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// PID is the process that logged the event.
	PID int `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Raw bytes
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Decoded local message
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session lifecycle
	Handle      *HandleEvent      `cbor:"13,keyasint,omitempty"` // Descriptor transfer
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
	Retry       *RetryEvent       `cbor:"15,keyasint,omitempty"` // Readiness retries
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

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the TLS session and classic framing layer.
	LayerTransport Layer = 0
	// LayerWire is the local message encoding layer.
	LayerWire Layer = 1
	// LayerIPC is the local messaging channel.
	LayerIPC Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerIPC:
		return "IPC"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates payload traffic.
	CategoryMessage Category = 0
	// CategoryHandshake indicates TLS negotiation progress.
	CategoryHandshake Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
	// CategoryOwnership indicates a descriptor handed between processes.
	CategoryOwnership Category = 4
	// CategoryRetry indicates a readiness wait that timed out and was retried.
	CategoryRetry Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryHandshake:
		return "HANDSHAKE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryOwnership:
		return "OWNERSHIP"
	case CategoryRetry:
		return "RETRY"
	default:
		return "UNKNOWN"
	}
}

// Role indicates which end of a channel logged the event.
type Role uint8

const (
	// RoleClient indicates the connecting side of a TLS session.
	RoleClient Role = 0
	// RoleServer indicates the accepting side of a TLS session.
	RoleServer Role = 1
	// RolePeer indicates either end of a symmetric local channel.
	RolePeer Role = 2
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	case RolePeer:
		return "PEER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data.
type FrameEvent struct {
	// Size is the frame size in bytes (including headers).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded local message.
type MessageEvent struct {
	// Request is the message kind name.
	Request string `cbor:"1,keyasint"`

	// Sender is the pid stamped into the message header.
	Sender int `cbor:"2,keyasint"`

	// Length is the declared data length.
	Length int `cbor:"3,keyasint"`

	// Text holds WriteText content.
	Text string `cbor:"4,keyasint,omitempty"`
}

// StateChangeEvent captures channel and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a socket level change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a TLS session state change.
	StateEntitySession StateEntity = 1
	// StateEntityChannel indicates a local channel state change.
	StateEntityChannel StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityChannel:
		return "CHANNEL"
	default:
		return "UNKNOWN"
	}
}

// HandleEvent captures a descriptor passed between processes.
type HandleEvent struct {
	// FD is the descriptor number in the logging process.
	FD int `cbor:"1,keyasint"`

	// Name is the file name, when known.
	Name string `cbor:"2,keyasint,omitempty"`

	// Sender is the pid of the process that shared the descriptor.
	Sender int `cbor:"3,keyasint,omitempty"`
}

// RetryEvent captures one readiness wait that timed out.
type RetryEvent struct {
	// Operation being retried ("handshake", "send", "receive", ...).
	Operation string `cbor:"1,keyasint"`

	// Tries is the number of tries spent so far.
	Tries int `cbor:"2,keyasint"`

	// Limit is the budget for the operation.
	Limit int `cbor:"3,keyasint"`

	// Timeout is the per-attempt wait.
	Timeout time.Duration `cbor:"4,keyasint"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
