package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
)

// HeaderSize is the size of the message header: request kind and sender pid,
// one 32-bit word each.
const HeaderSize = 8

// FrameSize is the number of bytes every message puts on the wire.
const FrameSize = HeaderSize + MaxPayload

// textPrefixSize is the size of the type and length fields of a text slot.
const textPrefixSize = 4

// textReserved is the tail of a text slot that text never reaches, so a
// zero-filled slot always holds a terminated string.
const textReserved = 2

// DataType tags the content of a payload slot.
type DataType uint16

const (
	// DataEmpty marks a slot without content.
	DataEmpty DataType = 0

	// DataText marks a slot holding length-prefixed text.
	DataText DataType = 1
)

// Codec errors.
var (
	// ErrShortHeader indicates fewer than HeaderSize header bytes.
	ErrShortHeader = errors.New("header truncated")

	// ErrShortSlot indicates a payload slot smaller than its fields.
	ErrShortSlot = errors.New("payload slot truncated")

	// ErrTypeMismatch indicates slot content of another type than the one
	// the request announces.
	ErrTypeMismatch = errors.New("data type does not match announced type")

	// ErrBadLength indicates a declared text length beyond the slot.
	ErrBadLength = errors.New("declared length exceeds payload slot")
)

// Header is the fixed part of a frame.
type Header struct {
	Request Request
	Sender  int32
}

// Put writes the header into b, which must hold HeaderSize bytes.
func (h Header) Put(b []byte) {
	binary.NativeEndian.PutUint32(b[0:4], uint32(h.Request))
	binary.NativeEndian.PutUint32(b[4:8], uint32(h.Sender))
}

// DecodeHeader reads a header from the first HeaderSize bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d < %d", ErrShortHeader, len(b), HeaderSize)
	}
	return Header{
		Request: Request(int32(binary.NativeEndian.Uint32(b[0:4]))),
		Sender:  int32(binary.NativeEndian.Uint32(b[4:8])),
	}, nil
}

var slotPool = sync.Pool{
	New: func() any {
		b := make([]byte, MaxPayload)
		return &b
	},
}

// Frame is the encoded form of a message, ready for one scatter write.
// Release returns its scratch slot; the frame must not be used afterwards.
type Frame struct {
	Header [HeaderSize]byte

	// Slot is the MaxPayload-byte payload slot.
	Slot []byte

	// Rights holds SCM_RIGHTS ancillary data for ShareOwnership frames.
	Rights []byte

	slot *[]byte
}

// Buffers returns the scatter vector: header then slot.
func (f *Frame) Buffers() [][]byte {
	return [][]byte{f.Header[:], f.Slot}
}

// Size returns the number of bytes the frame puts on the wire, ancillary
// data excluded.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Slot)
}

// Release returns the payload slot to the pool. Safe to call more than once.
func (f *Frame) Release() {
	if f == nil || f.slot == nil {
		return
	}
	slotPool.Put(f.slot)
	f.slot = nil
	f.Slot = nil
	f.Rights = nil
}

// Encode converts a message into a frame. For ShareOwnership the handle is
// carried in Rights and the slot stays zero.
func Encode(m *Message) (*Frame, error) {
	if m == nil {
		return nil, ErrNoData
	}
	if !m.request.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, m.request)
	}

	slot := slotPool.Get().(*[]byte)
	clear(*slot)

	f := &Frame{Slot: *slot, slot: slot}
	Header{Request: m.request, Sender: m.sender}.Put(f.Header[:])

	switch m.request {
	case RequestShareOwnership:
		if m.handle == nil {
			f.Release()
			return nil, ErrNoData
		}
		rights, err := rightsFor(m.handle)
		if err != nil {
			f.Release()
			return nil, err
		}
		f.Rights = rights
	case RequestWriteText:
		if err := EncodeText(f.Slot, m.text); err != nil {
			f.Release()
			return nil, err
		}
	}

	return f, nil
}

// EncodeText writes the text layout into slot.
func EncodeText(slot []byte, text string) error {
	if len(slot) < textPrefixSize {
		return fmt.Errorf("%w: %d bytes", ErrShortSlot, len(slot))
	}
	if len(text) > len(slot)-textPrefixSize-textReserved || len(text) > MaxTextLength {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(text))
	}

	binary.BigEndian.PutUint16(slot[0:2], uint16(DataText))
	binary.BigEndian.PutUint16(slot[2:4], uint16(len(text)))
	copy(slot[textPrefixSize:], text)
	return nil
}

// DecodeText reads text from a slot, checking the announced type first.
func DecodeText(slot []byte) (string, error) {
	if len(slot) < textPrefixSize {
		return "", fmt.Errorf("%w: %d bytes", ErrShortSlot, len(slot))
	}

	if typ := DataType(binary.BigEndian.Uint16(slot[0:2])); typ != DataText {
		return "", fmt.Errorf("%w: got type %d, want %d", ErrTypeMismatch, typ, DataText)
	}

	length := int(binary.BigEndian.Uint16(slot[2:4]))
	if length > len(slot)-textPrefixSize-textReserved || length > MaxTextLength {
		return "", fmt.Errorf("%w: %d", ErrBadLength, length)
	}

	return string(slot[textPrefixSize : textPrefixSize+length]), nil
}

// Decode builds a received message from its header and slot. For
// ShareOwnership, handle is the duplicate the kernel installed and the
// returned message owns it; on error the caller keeps ownership.
func Decode(h Header, slot []byte, handle *os.File) (*Message, error) {
	switch h.Request {
	case RequestShareOwnership:
		if handle == nil {
			return nil, ErrNoData
		}
		return &Message{
			request: RequestShareOwnership,
			sender:  h.Sender,
			handle:  handle,
			owned:   true,
		}, nil
	case RequestWriteText:
		text, err := DecodeText(slot)
		if err != nil {
			return nil, err
		}
		return &Message{
			request: RequestWriteText,
			sender:  h.Sender,
			text:    text,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, h.Request)
	}
}
