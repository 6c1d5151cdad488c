package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/retry"
	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

// PreambleToken is the classic-protocol body a TLS-capable server sends on
// the plain socket before negotiating.
const PreambleToken = "ACK"

// Session errors.
var (
	// ErrInvalidArgument indicates an absent session, socket, config or buffer.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotEstablished indicates traffic on a session that is not established.
	ErrNotEstablished = errors.New("session not established")

	// ErrAlreadyEstablished indicates a second handshake attempt.
	ErrAlreadyEstablished = errors.New("session already established")

	// ErrInvalidState indicates a handshake on a failed or closed session.
	ErrInvalidState = errors.New("invalid session state")

	// ErrHandshakeFailed indicates a failed negotiation.
	ErrHandshakeFailed = errors.New("TLS handshake failed")

	// ErrDeadline indicates a send or receive that spent its retry budget.
	ErrDeadline = errors.New("deadline exceeded")

	// ErrPeerNotTLSCapable indicates a server that did not send the preamble.
	ErrPeerNotTLSCapable = errors.New("peer is not TLS capable")
)

// Statistics holds the byte counters of a session.
type Statistics struct {
	Sent     uint64
	Received uint64
}

// Option configures a Session.
type Option func(*Session)

// WithPolicy sets the retry policy. The default is retry.DefaultTLSPolicy.
func WithPolicy(p retry.Policy) Option {
	return func(s *Session) {
		s.policy = p
	}
}

// WithLogger sets the operational logger. Nil disables it.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithProtocolLogger sets the protocol event logger. Nil disables it.
func WithProtocolLogger(l log.Logger) Option {
	return func(s *Session) {
		s.plog = l
	}
}

// WithConnectionID overrides the generated connection ID.
func WithConnectionID(id string) Option {
	return func(s *Session) {
		s.info.ID = id
	}
}

// Session owns the TLS state bound to a caller's socket: the cloned config,
// the encrypted connection and the connection record. They are created
// together and released together by Close; the socket itself is never
// closed.
//
// A Session is not safe for concurrent Send/Receive; State, Stats and the
// other accessors may be called from any goroutine.
type Session struct {
	role Role

	policy retry.Policy
	budget *retry.Budget
	gated  *gatedConn

	logger *slog.Logger
	plog   log.Logger

	mu       sync.Mutex
	state    State
	config   *tls.Config
	conn     *tls.Conn
	info     ConnectionInfo
	tlsState tls.ConnectionState
	sent     uint64
	received uint64
}

// NewSession binds a session to conn. cfg is cloned; the caller may reuse it.
func NewSession(conn net.Conn, role Role, cfg *tls.Config, opts ...Option) (*Session, error) {
	if conn == nil || cfg == nil {
		return nil, fmt.Errorf("%w: nil connection or TLS config", ErrInvalidArgument)
	}
	if role != RoleClient && role != RoleServer {
		return nil, fmt.Errorf("%w: role %d", ErrInvalidArgument, role)
	}

	s := &Session{
		role:   role,
		policy: retry.DefaultTLSPolicy(),
		state:  StateNew,
		info: ConnectionInfo{
			Kind:       ProtocolClassic,
			RemoteAddr: remoteAddrString(conn),
			Conn:       conn,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	if s.info.ID == "" {
		s.info.ID = uuid.New().String()
	}

	s.budget = retry.NewBudget(s.policy)
	s.gated = newGatedConn(conn, s.policy, s.budget)
	s.gated.logger = s.logger
	s.gated.plog = s.plog
	s.gated.connID = s.info.ID

	s.config = cfg.Clone()
	s.setState(StateContextReady, "")
	return s, nil
}

// ServerEstablish creates a server session on conn and negotiates it.
func ServerEstablish(ctx context.Context, conn net.Conn, cfg *tls.Config, opts ...Option) (*Session, error) {
	return establish(ctx, conn, RoleServer, cfg, opts)
}

// ClientEstablish creates a client session on conn and negotiates it.
func ClientEstablish(ctx context.Context, conn net.Conn, cfg *tls.Config, opts ...Option) (*Session, error) {
	return establish(ctx, conn, RoleClient, cfg, opts)
}

func establish(ctx context.Context, conn net.Conn, role Role, cfg *tls.Config, opts []Option) (*Session, error) {
	s, err := NewSession(conn, role, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Handshake(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Handshake exchanges the classic preamble and negotiates TLS. Every socket
// step is readiness gated; the whole negotiation shares one retry budget.
// On failure the session is released and left in StateFailed.
func (s *Session) Handshake(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidArgument)
	}

	s.mu.Lock()
	switch s.state {
	case StateContextReady:
	case StateEstablished:
		s.mu.Unlock()
		return ErrAlreadyEstablished
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
	cfg := s.config
	s.mu.Unlock()

	s.setState(StateHandshaking, "")
	s.budget.Refill()

	var err error
	if s.role == RoleServer {
		err = s.sendPreamble()
	} else {
		err = s.expectPreamble()
	}

	var conn *tls.Conn
	if err == nil {
		s.gated.setOp("handshake")
		if s.role == RoleServer {
			conn = tls.Server(s.gated, cfg)
		} else {
			conn = tls.Client(s.gated, cfg)
		}
		err = conn.HandshakeContext(ctx)
	}

	if err != nil {
		s.release()
		s.setState(StateFailed, err.Error())
		s.logError("handshake", err)
		if errors.Is(err, ErrPeerNotTLSCapable) {
			return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrHandshakeFailed, s.role, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.tlsState = conn.ConnectionState()
	s.info.Kind = ProtocolTLS
	s.mu.Unlock()

	s.setState(StateEstablished, "")
	s.debugLog("TLS session established",
		"role", s.role,
		"version", tls.VersionName(s.tlsState.Version),
		"alpn", s.tlsState.NegotiatedProtocol,
		"tries", s.budget.Used())
	return nil
}

// sendPreamble writes the classic "ACK" transaction on the plain socket.
func (s *Session) sendPreamble() error {
	s.gated.setOp("preamble")
	w := NewClassicWriter(s.gated)
	w.SetLogger(s.plog, s.info.ID)
	if err := w.WriteTransaction(wire.StatusDone, []byte(PreambleToken)); err != nil {
		return fmt.Errorf("send preamble: %w", err)
	}
	return nil
}

// expectPreamble reads one classic transaction and requires the "ACK" token.
func (s *Session) expectPreamble() error {
	s.gated.setOp("preamble")
	r := NewClassicReader(s.gated)
	r.SetLogger(s.plog, s.info.ID)
	status, body, err := r.ReadTransaction()
	if err != nil {
		if errors.Is(err, ErrBadHeader) || errors.Is(err, ErrMessageTooLarge) {
			return fmt.Errorf("%w: %w", ErrPeerNotTLSCapable, err)
		}
		return fmt.Errorf("read preamble: %w", err)
	}
	if status != wire.StatusDone || !bytes.Equal(body, []byte(PreambleToken)) {
		return fmt.Errorf("%w: got %s %q", ErrPeerNotTLSCapable, status, body)
	}
	return nil
}

// Send writes buf to the session as one TLS write. It returns the number of
// bytes written. A spent budget yields an error wrapping ErrDeadline.
//
// crypto/tls keeps the first write error for good, so a failed send moves
// the session to StateFailed. The session stays attached to the socket until
// Close, which then skips close_notify.
func (s *Session) Send(buf []byte) (int, error) {
	if s == nil || buf == nil {
		return 0, fmt.Errorf("%w: nil session or buffer", ErrInvalidArgument)
	}
	conn, err := s.established()
	if err != nil {
		return 0, err
	}

	s.budget.Refill()
	s.gated.setOp("send")

	n, err := conn.Write(buf)
	if err != nil {
		s.logError("send", err)
		s.setState(StateFailed, "send: "+err.Error())
		if errors.Is(err, retry.ErrExhausted) {
			return n, fmt.Errorf("%w: send: %w", ErrDeadline, err)
		}
		return n, fmt.Errorf("send: %w", err)
	}

	s.mu.Lock()
	s.sent += uint64(n)
	s.mu.Unlock()

	s.debugLog("sent bytes using TLS", "bytes", n)
	return n, nil
}

// Receive reads into buf, leaving room for a terminating zero byte which is
// stored right after the data. buf must hold at least two bytes. Reads that
// return no data are retried and charged to the budget.
func (s *Session) Receive(buf []byte) (int, error) {
	if s == nil || len(buf) < 2 {
		return 0, fmt.Errorf("%w: nil session or buffer shorter than 2 bytes", ErrInvalidArgument)
	}
	conn, err := s.established()
	if err != nil {
		return 0, err
	}

	s.budget.Refill()
	s.gated.setOp("receive")

	var n int
	err = retry.Do(s.budget, func() error {
		var rerr error
		n, rerr = conn.Read(buf[:len(buf)-1])
		if n > 0 {
			return nil
		}
		if rerr == nil {
			return retry.ErrNotReady
		}
		return rerr
	}, s.gated.notify)
	if err != nil {
		s.logError("receive", err)
		if errors.Is(err, retry.ErrExhausted) {
			return 0, fmt.Errorf("%w: receive: %w", ErrDeadline, err)
		}
		return 0, fmt.Errorf("receive: %w", err)
	}

	buf[n] = 0

	s.mu.Lock()
	s.received += uint64(n)
	s.mu.Unlock()

	s.debugLog("received bytes using TLS", "bytes", n)
	return n, nil
}

// Close tears the session down: close_notify if established, then the
// adapter is detached. The caller's socket stays open. Close is idempotent.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	if s.state != StateEstablished {
		conn = nil
	}
	s.mu.Unlock()

	var result *multierror.Error
	if conn != nil {
		s.budget.Refill()
		s.gated.setOp("close")
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("close notify: %w", err))
		}
	}
	if err := s.release(); err != nil {
		result = multierror.Append(result, err)
	}

	s.setState(StateClosed, "")
	return result.ErrorOrNil()
}

// release drops the TLS state and hands the socket back.
func (s *Session) release() error {
	s.mu.Lock()
	s.conn = nil
	s.config = nil
	s.mu.Unlock()

	if err := s.gated.detach(); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

func (s *Session) established() (*tls.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEstablished || s.conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotEstablished, s.state)
	}
	return s.conn, nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	if s == nil {
		return StateNew
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns the role the session was created with.
func (s *Session) Role() Role {
	if s == nil {
		return RoleClient
	}
	return s.role
}

// ConnectionInfo returns a copy of the connection record.
func (s *Session) ConnectionInfo() ConnectionInfo {
	if s == nil {
		return ConnectionInfo{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// TLSState returns the negotiated TLS state. It is zero until established.
func (s *Session) TLSState() tls.ConnectionState {
	if s == nil {
		return tls.ConnectionState{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tlsState
}

// Policy returns the retry policy of the session.
func (s *Session) Policy() retry.Policy {
	if s == nil {
		return retry.Policy{}
	}
	return s.policy
}

// Stats returns the byte counters.
func (s *Session) Stats() Statistics {
	if s == nil {
		return Statistics{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{Sent: s.sent, Received: s.received}
}

// Read implements io.Reader on top of Receive semantics without the
// terminator, so classic transactions can be layered on an established
// session.
func (s *Session) Read(p []byte) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: nil session", ErrInvalidArgument)
	}
	conn, err := s.established()
	if err != nil {
		return 0, err
	}
	s.budget.Refill()
	s.gated.setOp("receive")
	n, err := conn.Read(p)

	s.mu.Lock()
	s.received += uint64(n)
	s.mu.Unlock()
	return n, err
}

// Write implements io.Writer via Send.
func (s *Session) Write(p []byte) (int, error) {
	return s.Send(p)
}

func (s *Session) setState(state State, reason string) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()

	if old == state {
		return
	}
	if s.plog != nil {
		s.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: s.info.ID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			LocalRole:    s.role.logRole(),
			RemoteAddr:   s.info.RemoteAddr,
			StateChange: &log.StateChangeEvent{
				Entity:   log.StateEntitySession,
				OldState: old.String(),
				NewState: state.String(),
				Reason:   reason,
			},
		})
	}
}

func (s *Session) logError(op string, err error) {
	s.debugLog("TLS operation failed", "op", op, "error", err)
	if s.plog != nil {
		s.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: s.info.ID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryError,
			LocalRole:    s.role.logRole(),
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: err.Error(),
				Context: op,
			},
		})
	}
}

// debugLog logs a debug message if logging is enabled.
func (s *Session) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
