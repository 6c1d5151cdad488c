package ipc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/readiness"
	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

// DefaultTimeout is the readiness timeout of a new channel.
const DefaultTimeout = 10 * time.Second

// Channel errors.
var (
	// ErrInvalidArgument indicates a nil channel, socket or message, a
	// destroyed channel, or a negative timeout.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotReady indicates the socket did not become ready within the
	// channel timeout. Nothing was sent or received.
	ErrNotReady = errors.New("socket not ready")

	// ErrShortRead indicates fewer bytes than one whole message.
	ErrShortRead = errors.New("short read")

	// ErrShortWrite indicates the kernel accepted only part of a message.
	ErrShortWrite = errors.New("short write")

	// ErrAncillaryMismatch indicates ancillary data that does not fit the
	// announced request: a missing or extra descriptor, or truncated
	// control data.
	ErrAncillaryMismatch = errors.New("ancillary data does not match request")
)

// Statistics holds the byte counters of a channel.
type Statistics struct {
	Sent     uint64
	Received uint64
}

// Option configures a Channel.
type Option func(*Channel)

// WithTimeout sets the readiness timeout. Negative values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the operational logger. Nil disables it.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

// WithProtocolLogger sets the protocol event logger. Nil disables it.
func WithProtocolLogger(l log.Logger) Option {
	return func(c *Channel) {
		c.plog = l
	}
}

// Channel moves wire messages over one Unix-domain socket.
type Channel struct {
	conn    *net.UnixConn
	id      string
	remote  string
	timeout time.Duration

	sent     uint64
	received uint64

	logger *slog.Logger
	plog   log.Logger
}

// New binds a channel to conn. The socket stays owned by the caller.
func New(conn *net.UnixConn, opts ...Option) (*Channel, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil socket", ErrInvalidArgument)
	}

	c := &Channel{
		conn:    conn,
		id:      uuid.New().String(),
		timeout: DefaultTimeout,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		c.remote = addr.String()
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logState("", "OPEN")
	return c, nil
}

// ID returns the channel identifier used in protocol logs.
func (c *Channel) ID() string {
	if c == nil {
		return ""
	}
	return c.id
}

// Timeout returns the readiness timeout, or -1 for a nil channel.
func (c *Channel) Timeout() time.Duration {
	if c == nil {
		return -1
	}
	return c.timeout
}

// SetTimeout replaces the readiness timeout. A negative value is rejected
// and the previous timeout is kept.
func (c *Channel) SetTimeout(d time.Duration) error {
	if c == nil {
		return fmt.Errorf("%w: nil channel", ErrInvalidArgument)
	}
	if d < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidArgument, d)
	}
	c.timeout = d
	return nil
}

// Stats returns the byte counters.
func (c *Channel) Stats() Statistics {
	if c == nil {
		return Statistics{}
	}
	return Statistics{Sent: c.sent, Received: c.received}
}

// Destroy detaches the channel from its socket without closing it. Later
// calls fail with ErrInvalidArgument.
func (c *Channel) Destroy() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn = nil
	c.logState("OPEN", "DESTROYED")
}

// Write sends one message. It waits at most the channel timeout for the
// socket to become writable and makes a single attempt. It returns the
// number of bytes sent, ancillary data excluded.
func (c *Channel) Write(m *wire.Message) (int, error) {
	if c == nil || c.conn == nil || m == nil {
		return 0, fmt.Errorf("%w: nil channel, socket or message", ErrInvalidArgument)
	}

	f, err := wire.Encode(m)
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", m.Request(), err)
	}
	defer f.Release()

	if err := c.wait(readiness.Write); err != nil {
		c.infoLog("could not send internal message", "request", m.Request(), "error", err)
		return 0, err
	}

	n, err := sendFrame(c.conn, f)
	if err != nil {
		c.logError("write", err)
		return n, err
	}
	if n != f.Size() {
		err := fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, f.Size())
		c.logError("write", err)
		return n, err
	}

	c.sent += uint64(n)
	c.logMessage(log.DirectionOut, m, n)
	return n, nil
}

// Read receives one message. It waits at most the channel timeout for the
// socket to become readable and makes a single attempt. A received
// ShareOwnership message owns its descriptor; the caller must Close it.
//
// A closed peer yields io.EOF. Descriptors that arrive with a message that
// cannot be returned are closed.
func (c *Channel) Read() (*wire.Message, int, error) {
	if c == nil || c.conn == nil {
		return nil, 0, fmt.Errorf("%w: nil channel or socket", ErrInvalidArgument)
	}

	if err := c.wait(readiness.Read); err != nil {
		c.infoLog("could not receive internal message", "error", err)
		return nil, 0, err
	}

	var header [wire.HeaderSize]byte
	slot := make([]byte, wire.MaxPayload)

	n, files, err := recvFrame(c.conn, [][]byte{header[:], slot})
	if err != nil {
		c.logError("read", err)
		return nil, n, c.reclaim(err, files)
	}

	m, err := c.decode(header[:], slot, n, files)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.logError("read", err)
		}
		return nil, n, err
	}

	c.received += uint64(n)
	c.logMessage(log.DirectionIn, m, n)
	return m, n, nil
}

// decode turns received bytes into a message. On error every file has been
// closed.
func (c *Channel) decode(header, slot []byte, n int, files []*os.File) (*wire.Message, error) {
	if n == 0 {
		return nil, c.reclaim(io.EOF, files)
	}
	if n < wire.FrameSize {
		return nil, c.reclaim(fmt.Errorf("%w: %d of %d bytes", ErrShortRead, n, wire.FrameSize), files)
	}

	h, err := wire.DecodeHeader(header)
	if err != nil {
		return nil, c.reclaim(err, files)
	}

	var handle *os.File
	switch h.Request {
	case wire.RequestShareOwnership:
		if len(files) != 1 {
			return nil, c.reclaim(fmt.Errorf("%w: %s with %d descriptors", ErrAncillaryMismatch, h.Request, len(files)), files)
		}
		handle = files[0]
	case wire.RequestWriteText:
		if len(files) != 0 {
			return nil, c.reclaim(fmt.Errorf("%w: %s with %d descriptors", ErrAncillaryMismatch, h.Request, len(files)), files)
		}
	default:
		return nil, c.reclaim(fmt.Errorf("%w: %s from pid %d", wire.ErrUnknownRequest, h.Request, h.Sender), files)
	}

	m, err := wire.Decode(h, slot, handle)
	if err != nil {
		return nil, c.reclaim(err, files)
	}
	return m, nil
}

// reclaim closes descriptors that will not reach the caller and folds close
// failures into err.
func (c *Channel) reclaim(err error, files []*os.File) error {
	if len(files) == 0 {
		return err
	}

	if c.logger != nil {
		c.logger.Error("discarding received descriptors", "count", len(files), "error", err)
	}

	result := multierror.Append(nil, err)
	for _, f := range files {
		if cerr := f.Close(); cerr != nil {
			result = multierror.Append(result, fmt.Errorf("reclaim descriptor: %w", cerr))
		}
	}
	if len(result.Errors) == 1 {
		return err
	}
	return result
}

// wait runs the readiness step. Anything but exactly one ready descriptor
// is ErrNotReady.
func (c *Channel) wait(dir readiness.Direction) error {
	ready, err := readiness.Wait(c.conn, dir, c.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotReady, dir, err)
	}
	if ready != 1 {
		return fmt.Errorf("%w: %s after %s", ErrNotReady, dir, c.timeout)
	}
	return nil
}

func (c *Channel) logMessage(dir log.Direction, m *wire.Message, n int) {
	c.debugLog("internal message", "direction", dir, "request", m.Request(), "sender", m.Sender(), "bytes", n)
	if c.plog == nil {
		return
	}

	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerIPC,
		Category:     log.CategoryMessage,
		LocalRole:    log.RolePeer,
		RemoteAddr:   c.remote,
		PID:          os.Getpid(),
		Message: &log.MessageEvent{
			Request: m.Request().String(),
			Sender:  m.Sender(),
			Length:  m.Len(),
			Text:    m.Text(),
		},
	})

	if h := m.Handle(); h != nil {
		c.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Direction:    dir,
			Layer:        log.LayerIPC,
			Category:     log.CategoryOwnership,
			LocalRole:    log.RolePeer,
			RemoteAddr:   c.remote,
			PID:          os.Getpid(),
			Handle: &log.HandleEvent{
				FD:     descriptor(h),
				Name:   h.Name(),
				Sender: m.Sender(),
			},
		})
	}
}

// descriptor returns the descriptor number of f without switching it to
// blocking mode the way File.Fd does.
func descriptor(f *os.File) int {
	raw, err := f.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	raw.Control(func(u uintptr) {
		fd = int(u)
	})
	return fd
}

func (c *Channel) logState(old, state string) {
	if c.plog == nil {
		return
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerIPC,
		Category:     log.CategoryState,
		LocalRole:    log.RolePeer,
		RemoteAddr:   c.remote,
		PID:          os.Getpid(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: old,
			NewState: state,
		},
	})
}

func (c *Channel) logError(op string, err error) {
	c.infoLog("internal message failed", "op", op, "error", err)
	if c.plog == nil {
		return
	}
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerIPC,
		Category:     log.CategoryError,
		LocalRole:    log.RolePeer,
		PID:          os.Getpid(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerIPC,
			Message: err.Error(),
			Context: op,
		},
	})
}

func (c *Channel) infoLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Channel) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
