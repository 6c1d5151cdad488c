package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"

	"github.com/cfnet-project/cfnet-go/pkg/wire"
)

// SecureChannel is an established encrypted byte stream.
// Implemented by Session.
type SecureChannel interface {
	io.ReadWriter

	// Send writes a buffer as one TLS write.
	Send(buf []byte) (int, error)

	// Receive reads into buf and zero terminates the data.
	Receive(buf []byte) (int, error)

	// TLSState returns the TLS connection state.
	TLSState() tls.ConnectionState

	// Stats returns the byte counters.
	Stats() Statistics

	// Close releases the session without closing the socket.
	Close() error
}

// TransportServer accepts connections and establishes sessions.
// Implemented by Listener.
type TransportServer interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop gracefully stops the server.
	Stop() error

	// Addr returns the server's listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of active connections.
	ConnectionCount() int
}

// TransactionReadWriter provides classic framed transaction I/O.
// Implemented by Transactor.
type TransactionReadWriter interface {
	// ReadTransaction reads one transaction.
	ReadTransaction() (wire.Status, []byte, error)

	// WriteTransaction writes one transaction.
	WriteTransaction(status wire.Status, body []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ SecureChannel         = (*Session)(nil)
	_ TransportServer       = (*Listener)(nil)
	_ TransactionReadWriter = (*Transactor)(nil)
)
