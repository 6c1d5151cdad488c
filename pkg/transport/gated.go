package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/cfnet-project/cfnet-go/pkg/log"
	"github.com/cfnet-project/cfnet-go/pkg/retry"
)

// deadlineError reports a spent retry budget. It is a temporary net.Error so
// that crypto/tls does not poison the read side of the session with it. The
// write side keeps every error regardless; see Session.Send.
type deadlineError struct {
	op    string
	tries int
}

func (e *deadlineError) Error() string {
	return fmt.Sprintf("%s: %v after %d tries", e.op, retry.ErrExhausted, e.tries)
}

func (e *deadlineError) Timeout() bool   { return true }
func (e *deadlineError) Temporary() bool { return true }
func (e *deadlineError) Unwrap() error   { return retry.ErrExhausted }

var _ net.Error = (*deadlineError)(nil)

// gatedConn is the readiness-gated adapter TLS runs over. Each socket step
// waits at most policy.Timeout; a step that times out without progress is
// retried and costs one try of the shared budget.
//
// The adapter never owns the socket: Close interrupts pending I/O and
// detach hands the socket back with its deadlines cleared.
type gatedConn struct {
	net.Conn

	policy retry.Policy
	budget *retry.Budget

	logger *slog.Logger
	plog   log.Logger
	connID string

	op     atomic.Value // string
	closed atomic.Bool
}

func newGatedConn(conn net.Conn, policy retry.Policy, budget *retry.Budget) *gatedConn {
	g := &gatedConn{
		Conn:   conn,
		policy: policy,
		budget: budget,
	}
	g.op.Store("io")
	return g
}

// setOp names the logical operation subsequent retries are charged to.
func (g *gatedConn) setOp(op string) {
	g.op.Store(op)
}

func (g *gatedConn) currentOp() string {
	return g.op.Load().(string)
}

func (g *gatedConn) Read(p []byte) (int, error) {
	if g.closed.Load() {
		return 0, net.ErrClosed
	}

	var n int
	err := retry.Do(g.budget, func() error {
		if err := g.Conn.SetReadDeadline(time.Now().Add(g.policy.Timeout)); err != nil {
			return err
		}
		if g.closed.Load() {
			return net.ErrClosed
		}

		var err error
		n, err = g.Conn.Read(p)
		if n > 0 {
			if isTimeout(err) {
				return nil
			}
			return err
		}
		if isTimeout(err) {
			if g.closed.Load() {
				return net.ErrClosed
			}
			return retry.ErrNotReady
		}
		return err
	}, g.notify)

	return n, g.mapErr(err)
}

// Write sends all of p. A step that times out after partial progress is
// continued from the last written offset without charging a try, so no byte
// is ever written twice.
func (g *gatedConn) Write(p []byte) (int, error) {
	if g.closed.Load() {
		return 0, net.ErrClosed
	}

	written := 0
	err := retry.Do(g.budget, func() error {
		for {
			if err := g.Conn.SetWriteDeadline(time.Now().Add(g.policy.Timeout)); err != nil {
				return err
			}
			if g.closed.Load() {
				return net.ErrClosed
			}

			n, err := g.Conn.Write(p[written:])
			written += n
			switch {
			case err == nil:
				return nil
			case !isTimeout(err):
				return err
			case g.closed.Load():
				return net.ErrClosed
			case n == 0:
				return retry.ErrNotReady
			}
		}
	}, g.notify)

	return written, g.mapErr(err)
}

// Close interrupts pending I/O and stops the adapter. The socket stays open.
func (g *gatedConn) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	return g.Conn.SetDeadline(time.Now())
}

// detach stops the adapter and clears the deadlines it left on the socket.
func (g *gatedConn) detach() error {
	g.closed.Store(true)
	return g.Conn.SetDeadline(time.Time{})
}

func (g *gatedConn) notify(_ error, tries int) {
	op := g.currentOp()
	if g.logger != nil {
		g.logger.Debug("readiness wait timed out, retrying",
			"op", op,
			"tries", tries,
			"limit", g.policy.Tries)
	}
	if g.plog != nil {
		g.plog.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: g.connID,
			Layer:        log.LayerTransport,
			Category:     log.CategoryRetry,
			Retry: &log.RetryEvent{
				Operation: op,
				Tries:     tries,
				Limit:     g.policy.Tries,
				Timeout:   g.policy.Timeout,
			},
		})
	}
}

func (g *gatedConn) mapErr(err error) error {
	if err != nil && errors.Is(err, retry.ErrExhausted) {
		return &deadlineError{op: g.currentOp(), tries: g.budget.Used()}
	}
	return err
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
