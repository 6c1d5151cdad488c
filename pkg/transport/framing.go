package transport

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

// Classic framing constants.
const (
	// ClassicHeaderSize is the size of the in-band transaction header:
	// status byte, space, decimal body length, NUL padding.
	ClassicHeaderSize = 8

	// DefaultMaxTransactionSize is the largest body a transaction may carry.
	DefaultMaxTransactionSize = 4096

	// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
	// Larger frames are truncated in log events to avoid excessive memory usage.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	// ErrMessageTooLarge indicates the body exceeds the maximum size.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrFrameTruncated indicates the frame was truncated.
	ErrFrameTruncated = errors.New("frame truncated")

	// ErrBadHeader indicates a transaction header that cannot be parsed.
	ErrBadHeader = errors.New("malformed transaction header")
)

// PutClassicHeader writes the header for a body of length n into b, which
// must hold ClassicHeaderSize bytes.
func PutClassicHeader(b []byte, status wire.Status, n int) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: status %q", ErrBadHeader, byte(status))
	}
	if n < 0 {
		return fmt.Errorf("%w: negative length %d", ErrBadHeader, n)
	}

	h := strconv.AppendInt([]byte{byte(status), ' '}, int64(n), 10)
	if len(h) > ClassicHeaderSize {
		return fmt.Errorf("%w: %d", ErrMessageTooLarge, n)
	}
	clear(b[:ClassicHeaderSize])
	copy(b, h)
	return nil
}

// ParseClassicHeader decodes a transaction header.
func ParseClassicHeader(b []byte) (wire.Status, int, error) {
	if len(b) < ClassicHeaderSize {
		return 0, 0, ErrFrameTruncated
	}

	status := wire.Status(b[0])
	if !status.IsValid() {
		return 0, 0, fmt.Errorf("%w: status %q", ErrBadHeader, b[0])
	}
	if b[1] != ' ' {
		return 0, 0, fmt.Errorf("%w: missing separator", ErrBadHeader)
	}

	end := 2
	for end < ClassicHeaderSize && b[end] != 0 {
		end++
	}
	for _, c := range b[end:ClassicHeaderSize] {
		if c != 0 {
			return 0, 0, fmt.Errorf("%w: padding not zero", ErrBadHeader)
		}
	}

	n, err := strconv.Atoi(string(b[2:end]))
	if err != nil || n < 0 {
		return 0, 0, fmt.Errorf("%w: length %q", ErrBadHeader, b[2:end])
	}
	return status, n, nil
}

// ClassicWriter writes framed transactions to an underlying writer.
type ClassicWriter struct {
	w       io.Writer
	maxSize int
	mu      sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewClassicWriter creates a new transaction writer.
func NewClassicWriter(w io.Writer) *ClassicWriter {
	return NewClassicWriterWithMaxSize(w, DefaultMaxTransactionSize)
}

// NewClassicWriterWithMaxSize creates a transaction writer with a custom max size.
func NewClassicWriterWithMaxSize(w io.Writer, maxSize int) *ClassicWriter {
	return &ClassicWriter{
		w:       w,
		maxSize: maxSize,
	}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (cw *ClassicWriter) SetLogger(logger log.Logger, connID string) {
	cw.logger = logger
	cw.connID = connID
}

// WriteTransaction writes header and body with a single Write call.
// Thread-safe: can be called from multiple goroutines.
func (cw *ClassicWriter) WriteTransaction(status wire.Status, body []byte) error {
	if len(body) > cw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(body), cw.maxSize)
	}

	frame := make([]byte, ClassicHeaderSize+len(body))
	if err := PutClassicHeader(frame, status, len(body)); err != nil {
		return err
	}
	copy(frame[ClassicHeaderSize:], body)

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if _, err := cw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write transaction: %w", err)
	}

	if cw.logger != nil {
		cw.logger.Log(makeFrameEvent(cw.connID, frame, log.DirectionOut))
	}
	return nil
}

// ClassicReader reads framed transactions from an underlying reader. It
// never reads past the end of the current transaction.
type ClassicReader struct {
	r         io.Reader
	maxSize   int
	headerBuf [ClassicHeaderSize]byte

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewClassicReader creates a new transaction reader.
func NewClassicReader(r io.Reader) *ClassicReader {
	return NewClassicReaderWithMaxSize(r, DefaultMaxTransactionSize)
}

// NewClassicReaderWithMaxSize creates a transaction reader with a custom max size.
func NewClassicReaderWithMaxSize(r io.Reader, maxSize int) *ClassicReader {
	return &ClassicReader{
		r:       r,
		maxSize: maxSize,
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (cr *ClassicReader) SetLogger(logger log.Logger, connID string) {
	cr.logger = logger
	cr.connID = connID
}

// ReadTransaction reads one transaction and returns its status and body.
func (cr *ClassicReader) ReadTransaction() (wire.Status, []byte, error) {
	if _, err := io.ReadFull(cr.r, cr.headerBuf[:]); err != nil {
		if err == io.EOF {
			return 0, nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("failed to read transaction header: %w", err)
	}

	status, length, err := ParseClassicHeader(cr.headerBuf[:])
	if err != nil {
		return 0, nil, err
	}
	if length > cr.maxSize {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, cr.maxSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(cr.r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || err == io.EOF {
			return 0, nil, ErrFrameTruncated
		}
		return 0, nil, fmt.Errorf("failed to read transaction body: %w", err)
	}

	if cr.logger != nil {
		frame := append(cr.headerBuf[:len(cr.headerBuf):len(cr.headerBuf)], body...)
		cr.logger.Log(makeFrameEvent(cr.connID, frame, log.DirectionIn))
	}

	return status, body, nil
}

// makeFrameEvent creates a log event for a frame.
func makeFrameEvent(connID string, frame []byte, direction log.Direction) log.Event {
	data := frame
	truncated := false

	if len(frame) > MaxLogFrameDataSize {
		data = frame[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(frame),
			Data:      data,
			Truncated: truncated,
		},
	}
}

// Transactor combines transaction reading and writing, typically over an
// established Session.
type Transactor struct {
	*ClassicReader
	*ClassicWriter
}

// NewTransactor creates a new transactor for bidirectional exchanges.
func NewTransactor(rw io.ReadWriter) *Transactor {
	return &Transactor{
		ClassicReader: NewClassicReader(rw),
		ClassicWriter: NewClassicWriter(rw),
	}
}

// SetLogger configures logging for both reader and writer.
// Pass nil to disable logging.
func (t *Transactor) SetLogger(logger log.Logger, connID string) {
	t.ClassicReader.SetLogger(logger, connID)
	t.ClassicWriter.SetLogger(logger, connID)
}
