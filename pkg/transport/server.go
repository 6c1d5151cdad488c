package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/retry"
)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// TLSConfig contains TLS settings.
	TLSConfig *TLSConfig

	// Address to listen on (e.g., ":5308" or "127.0.0.1:5308").
	Address string

	// Policy bounds every blocking step (default: retry.DefaultTLSPolicy).
	Policy retry.Policy

	// Logger for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol logging (optional).
	ProtocolLogger log.Logger

	// OnSession is called with every established session. The session and
	// its socket are closed when it returns.
	OnSession func(s *Session)

	// OnError is called when accepting or establishing fails.
	OnError func(err error)
}

// Listener accepts TCP connections and establishes a server session on each.
// It owns the sockets it accepts.
type Listener struct {
	config   ListenerConfig
	tlsConf  *tls.Config
	listener net.Listener

	// Active connections
	conns   map[net.Conn]struct{}
	connsMu sync.RWMutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewListener creates a new listener.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Policy == (retry.Policy{}) {
		config.Policy = retry.DefaultTLSPolicy()
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}

	tlsConf, err := NewServerTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Listener{
		config:  config,
		tlsConf: tlsConf,
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Start starts listening and accepting connections.
func (l *Listener) Start(ctx context.Context) error {
	if l.running.Load() {
		return fmt.Errorf("listener already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", l.config.Address)
	if err != nil {
		l.cancel()
		return fmt.Errorf("failed to listen: %w", err)
	}
	l.listener = listener

	l.running.Store(true)

	l.wg.Add(1)
	go l.acceptLoop()

	return nil
}

// Stop stops accepting, closes all accepted sockets and waits for handlers.
func (l *Listener) Stop() error {
	if !l.running.Load() {
		return nil
	}

	l.running.Store(false)
	l.cancel()

	if l.listener != nil {
		l.listener.Close()
	}

	l.connsMu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.connsMu.Unlock()

	l.wg.Wait()

	return nil
}

// Addr returns the listen address.
func (l *Listener) Addr() net.Addr {
	if l.listener != nil {
		return l.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of active connections.
func (l *Listener) ConnectionCount() int {
	l.connsMu.RLock()
	defer l.connsMu.RUnlock()
	return len(l.conns)
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for l.running.Load() {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.running.Load() && l.config.OnError != nil {
				l.config.OnError(fmt.Errorf("accept error: %w", err))
			}
			continue
		}

		l.wg.Add(1)
		go l.handleConnection(conn)
	}
}

func (l *Listener) handleConnection(conn net.Conn) {
	defer l.wg.Done()

	l.connsMu.Lock()
	l.conns[conn] = struct{}{}
	l.connsMu.Unlock()

	defer func() {
		l.connsMu.Lock()
		delete(l.conns, conn)
		l.connsMu.Unlock()
		conn.Close()
	}()

	sess, err := ServerEstablish(l.ctx, conn, l.tlsConf,
		WithPolicy(l.config.Policy),
		WithLogger(l.config.Logger),
		WithProtocolLogger(l.config.ProtocolLogger))
	if err != nil {
		l.reportError(err)
		return
	}
	defer sess.Close()

	if err := VerifyConnection(sess.TLSState()); err != nil {
		l.reportError(err)
		return
	}

	if l.config.OnSession != nil {
		l.config.OnSession(sess)
	}
}

func (l *Listener) reportError(err error) {
	if l.config.OnError != nil && l.running.Load() {
		l.config.OnError(err)
	}
}
