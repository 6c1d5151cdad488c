package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/retry"
)

// DialerConfig configures a Dialer.
type DialerConfig struct {
	// TLSConfig contains TLS settings.
	TLSConfig *TLSConfig

	// Policy bounds every blocking step (default: retry.DefaultTLSPolicy).
	Policy retry.Policy

	// ConnectTimeout is the TCP connect timeout (default: 30s).
	ConnectTimeout time.Duration

	// Logger for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol logging (optional).
	ProtocolLogger log.Logger
}

// Dialer connects to servers and establishes client sessions.
type Dialer struct {
	config  DialerConfig
	tlsConf *tls.Config
}

// NewDialer creates a new dialer.
func NewDialer(config DialerConfig) (*Dialer, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.Policy == (retry.Policy{}) {
		config.Policy = retry.DefaultTLSPolicy()
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, err
	}

	tlsConf, err := NewClientTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Dialer{
		config:  config,
		tlsConf: tlsConf,
	}, nil
}

// Dial connects to address and establishes a client session. The socket is
// owned by the caller: release both with Hangup.
func (d *Dialer) Dial(ctx context.Context, address string) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.config.ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	sess, err := ClientEstablish(ctx, conn, d.tlsConf,
		WithPolicy(d.config.Policy),
		WithLogger(d.config.Logger),
		WithProtocolLogger(d.config.ProtocolLogger))
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := VerifyConnection(sess.TLSState()); err != nil {
		Hangup(sess)
		return nil, fmt.Errorf("connection verification failed: %w", err)
	}

	return sess, nil
}

// Hangup closes the session and then the socket it was bound to.
func Hangup(s *Session) error {
	if s == nil {
		return nil
	}

	var result *multierror.Error
	if err := s.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if conn := s.ConnectionInfo().Conn; conn != nil {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close socket: %w", err))
		}
	}
	return result.ErrorOrNil()
}
