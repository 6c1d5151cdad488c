package transport

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func startTestListener(t *testing.T, onSession func(*Session)) *Listener {
	t.Helper()

	cert, _ := generateTestCertificate(t)
	l, err := NewListener(ListenerConfig{
		TLSConfig: &TLSConfig{Certificate: cert},
		Address:   "127.0.0.1:0",
		OnSession: onSession,
	})
	if err != nil {
		t.Fatalf("NewListener failed: %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { l.Stop() })
	return l
}

func echoSession(s *Session) {
	buf := make([]byte, 256)
	for {
		n, err := s.Receive(buf)
		if err != nil {
			return
		}
		if _, err := s.Send(buf[:n]); err != nil {
			return
		}
	}
}

func TestListenerDialerEcho(t *testing.T) {
	l := startTestListener(t, echoSession)

	// The listener's certificate is self-signed.
	d, err := NewDialer(DialerConfig{
		TLSConfig: &TLSConfig{InsecureSkipVerify: true},
	})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := d.Dial(ctx, l.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer Hangup(s)

	if _, err := s.Send([]byte("ping")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	buf := make([]byte, 16)
	n, err := s.Receive(buf)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("echo = %q, want %q", buf[:n], "ping")
	}
	if got := s.TLSState().NegotiatedProtocol; got != ALPNProtocol {
		t.Errorf("ALPN = %q, want %q", got, ALPNProtocol)
	}
}

func TestDialerVerifiesServer(t *testing.T) {
	l := startTestListener(t, echoSession)

	// An empty pool trusts nobody.
	d, err := NewDialer(DialerConfig{
		TLSConfig: &TLSConfig{RootCAs: x509.NewCertPool(), ServerName: "test.local"},
	})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	_, err = d.Dial(context.Background(), l.Addr().String())
	if !errors.Is(err, ErrHandshakeFailed) {
		t.Errorf("error = %v, want ErrHandshakeFailed", err)
	}
}

func TestDialerClassicOnlyServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		// A classic server answers with a plain transaction, no preamble.
		NewClassicWriter(c).WriteTransaction('m', []byte("READY"))
		time.Sleep(500 * time.Millisecond)
	}()

	d, err := NewDialer(DialerConfig{TLSConfig: &TLSConfig{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	_, err = d.Dial(context.Background(), ln.Addr().String())
	if !errors.Is(err, ErrPeerNotTLSCapable) {
		t.Errorf("error = %v, want ErrPeerNotTLSCapable", err)
	}
}

func TestListenerConcurrentSessions(t *testing.T) {
	l := startTestListener(t, echoSession)

	d, err := NewDialer(DialerConfig{TLSConfig: &TLSConfig{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}

	const clients = 5
	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := d.Dial(context.Background(), l.Addr().String())
			if err != nil {
				errs <- err
				return
			}
			defer Hangup(s)

			if _, err := s.Send([]byte("hi")); err != nil {
				errs <- err
				return
			}
			buf := make([]byte, 8)
			if _, err := s.Receive(buf); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("client failed: %v", err)
	}
}

func TestListenerStop(t *testing.T) {
	l := startTestListener(t, echoSession)

	d, err := NewDialer(DialerConfig{TLSConfig: &TLSConfig{InsecureSkipVerify: true}})
	if err != nil {
		t.Fatalf("NewDialer failed: %v", err)
	}
	s, err := d.Dial(context.Background(), l.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer Hangup(s)

	deadline := time.Now().Add(2 * time.Second)
	for l.ConnectionCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := l.ConnectionCount(); got != 1 {
		t.Errorf("ConnectionCount = %d, want 1", got)
	}

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := l.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount after Stop = %d, want 0", got)
	}
	if err := l.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestNewListenerValidation(t *testing.T) {
	if _, err := NewListener(ListenerConfig{}); err == nil {
		t.Error("expected error for missing TLSConfig")
	}
	if _, err := NewListener(ListenerConfig{TLSConfig: &TLSConfig{}}); err == nil {
		t.Error("expected error for missing certificate")
	}
	if _, err := NewDialer(DialerConfig{}); err == nil {
		t.Error("expected error for missing TLSConfig")
	}
}

func TestHangupNil(t *testing.T) {
	if err := Hangup(nil); err != nil {
		t.Errorf("Hangup(nil) = %v", err)
	}
}
