package wire

import (
	"errors"
	"fmt"
	"os"
)

// MaxPayload is the size of the payload slot carried by every message.
const MaxPayload = 1024

// MaxTextLength is the longest text a WriteText message can carry: the slot
// minus the type and length fields and the two trailing bytes, which are
// never written. Longer text is rejected rather than cut, so every accepted
// text decodes unchanged.
const MaxTextLength = MaxPayload - textPrefixSize - textReserved

// HandleSize is the declared data length of a ShareOwnership message, the
// size of one descriptor in SCM_RIGHTS ancillary data.
const HandleSize = 4

// Request identifies what a message asks the receiving process to do.
type Request int32

const (
	// RequestInvalid is never sent; it is returned for absent messages.
	RequestInvalid Request = 0

	// RequestShareOwnership hands a descriptor to the other process.
	RequestShareOwnership Request = 1

	// RequestWriteText sends a short text to the other process.
	RequestWriteText Request = 2
)

// String returns the request name.
func (r Request) String() string {
	switch r {
	case RequestInvalid:
		return "INVALID"
	case RequestShareOwnership:
		return "SHARE_OWNERSHIP"
	case RequestWriteText:
		return "WRITE_TEXT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(r))
	}
}

// IsValid returns true for the requests that can be sent.
func (r Request) IsValid() bool {
	return r == RequestShareOwnership || r == RequestWriteText
}

// Message errors.
var (
	// ErrNoData indicates a message constructed without data.
	ErrNoData = errors.New("message has no data")

	// ErrUnknownRequest indicates a request kind this package cannot build
	// or decode.
	ErrUnknownRequest = errors.New("unknown request")

	// ErrInvalidData indicates data of the wrong type for the request.
	ErrInvalidData = errors.New("data does not match request")

	// ErrPayloadTooLarge indicates text that does not fit the payload slot.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Message is one immutable inter-process request.
type Message struct {
	request Request
	sender  int32

	// Exactly one of handle or text is meaningful, selected by request.
	handle *os.File
	text   string

	// owned is set on messages decoded from the wire: the handle is the
	// receiver's duplicate and Close releases it.
	owned bool
}

// NewShareOwnership builds a message that shares f with the peer process.
// The message references f but does not own it.
func NewShareOwnership(f *os.File) (*Message, error) {
	if f == nil {
		return nil, ErrNoData
	}
	return &Message{
		request: RequestShareOwnership,
		sender:  int32(os.Getpid()),
		handle:  f,
	}, nil
}

// NewWriteText builds a text message. Text longer than MaxTextLength is
// rejected, never truncated.
func NewWriteText(text string) (*Message, error) {
	if len(text) > MaxTextLength {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(text), MaxTextLength)
	}
	return &Message{
		request: RequestWriteText,
		sender:  int32(os.Getpid()),
		text:    text,
	}, nil
}

// New builds a message for request from data: an *os.File for
// RequestShareOwnership, a string or []byte for RequestWriteText.
func New(request Request, data any) (*Message, error) {
	if data == nil {
		return nil, ErrNoData
	}

	switch request {
	case RequestShareOwnership:
		f, ok := data.(*os.File)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs *os.File, got %T", ErrInvalidData, request, data)
		}
		return NewShareOwnership(f)
	case RequestWriteText:
		switch v := data.(type) {
		case string:
			return NewWriteText(v)
		case []byte:
			if v == nil {
				return nil, ErrNoData
			}
			return NewWriteText(string(v))
		default:
			return nil, fmt.Errorf("%w: %s needs text, got %T", ErrInvalidData, request, data)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, request)
	}
}

// Request returns the message kind, or RequestInvalid for a nil message.
func (m *Message) Request() Request {
	if m == nil {
		return RequestInvalid
	}
	return m.request
}

// Sender returns the pid of the process that built the message, or 0.
func (m *Message) Sender() int {
	if m == nil {
		return 0
	}
	return int(m.sender)
}

// Handle returns the shared file of a ShareOwnership message, or nil.
func (m *Message) Handle() *os.File {
	if m == nil {
		return nil
	}
	return m.handle
}

// Text returns the text of a WriteText message, or "".
func (m *Message) Text() string {
	if m == nil {
		return ""
	}
	return m.text
}

// Len returns the declared data length: HandleSize for ShareOwnership, the
// text length for WriteText, 0 otherwise.
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	switch m.request {
	case RequestShareOwnership:
		return HandleSize
	case RequestWriteText:
		return len(m.text)
	default:
		return 0
	}
}

// Owned reports whether the message owns its handle (it was received).
func (m *Message) Owned() bool {
	return m != nil && m.owned
}

// Close releases a received handle. It is a no-op for messages built by the
// sender, whose files stay with the caller.
func (m *Message) Close() error {
	if m == nil || !m.owned || m.handle == nil {
		return nil
	}
	err := m.handle.Close()
	m.handle = nil
	return err
}
