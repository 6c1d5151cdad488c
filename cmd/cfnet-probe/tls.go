package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/cfnet-project/cfnet-go/pkg/cert"
	"github.com/cfnet-project/cfnet-go/pkg/transport"
)

// identity returns the configured certificate, or the self-signed one from
// -cert-dir (created on first use).
func (p *probe) identity() (*cert.Identity, error) {
	if p.cfg.TLS.CertFile != "" {
		return cert.LoadIdentity(p.cfg.TLS.CertFile, p.cfg.TLS.KeyFile)
	}

	opts := cert.Options{
		CommonName:  p.cfg.TLS.ServerName,
		DNSNames:    []string{"localhost"},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if opts.CommonName != "" {
		opts.DNSNames = append(opts.DNSNames, opts.CommonName)
	}

	store := cert.NewFileStore(p.opts.certDir)
	id, created, err := store.LoadOrGenerate(opts)
	if err != nil {
		return nil, err
	}
	if created {
		p.logger.Info("generated self-signed identity", "dir", p.opts.certDir)
	}
	return id, nil
}

func (p *probe) genCert() error {
	id, err := p.identity()
	if err != nil {
		return err
	}
	info := cert.GetCertificateInfo(id.Certificate)
	fmt.Fprintf(p.out, "Subject:     %s\n", info.CommonName)
	fmt.Fprintf(p.out, "Valid until: %s\n", info.NotAfter.Format("2006-01-02"))
	fmt.Fprintf(p.out, "Fingerprint: %s\n", info.Fingerprint)
	return nil
}

// clientTLS builds the trust settings of tls-send.
func (p *probe) clientTLS() (*transport.TLSConfig, error) {
	tc := &transport.TLSConfig{
		ServerName:         p.cfg.TLS.ServerName,
		InsecureSkipVerify: p.opts.insecure,
	}

	switch {
	case p.opts.pinFile != "":
		pinned, err := cert.ReadCertFile(p.opts.pinFile)
		if err != nil {
			return nil, err
		}
		tc.InsecureSkipVerify = true
		tc.VerifyPeerCertificate = cert.VerifyPinned(pinned)
	case p.cfg.TLS.CAFile != "":
		pool, err := cert.LoadPool(p.cfg.TLS.CAFile)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}

	if p.cfg.TLS.CertFile != "" {
		id, err := cert.LoadIdentity(p.cfg.TLS.CertFile, p.cfg.TLS.KeyFile)
		if err != nil {
			return nil, err
		}
		tc.Certificate = id.TLSCertificate()
	}
	return tc, nil
}

func (p *probe) serveTLS(ctx context.Context) error {
	id, err := p.identity()
	if err != nil {
		return err
	}

	tc := &transport.TLSConfig{Certificate: id.TLSCertificate()}
	if p.cfg.TLS.CAFile != "" {
		if tc.ClientCAs, err = cert.LoadPool(p.cfg.TLS.CAFile); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var served atomic.Int64
	l, err := transport.NewListener(transport.ListenerConfig{
		TLSConfig:      tc,
		Address:        p.cfg.TLS.Address,
		Policy:         p.cfg.TLSPolicy(),
		Logger:         p.logger,
		ProtocolLogger: p.plog,
		OnSession: func(s *transport.Session) {
			p.echo(s)
			if p.opts.count > 0 && served.Add(1) >= int64(p.opts.count) {
				cancel()
			}
		},
		OnError: func(err error) {
			p.logger.Warn("session failed", "error", err)
		},
	})
	if err != nil {
		return err
	}
	if err := l.Start(ctx); err != nil {
		return err
	}
	p.logger.Info("listening", "addr", l.Addr().String(), "policy", p.cfg.TLSPolicy().MaxBlocking())

	<-ctx.Done()
	return l.Stop()
}

// echo sends every received chunk back until the peer goes away.
func (p *probe) echo(s *transport.Session) {
	info := s.ConnectionInfo()
	buf := make([]byte, transport.DefaultMaxTransactionSize+1)
	for {
		n, err := s.Receive(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Warn("receive failed", "remote", info.RemoteAddr, "error", err)
			}
			return
		}
		fmt.Fprintf(p.out, "%s: %q\n", info.RemoteAddr, buf[:n])
		if _, err := s.Send(buf[:n]); err != nil {
			p.logger.Warn("send failed", "remote", info.RemoteAddr, "error", err)
			return
		}
	}
}

func (p *probe) sendTLS(ctx context.Context, text string) error {
	tc, err := p.clientTLS()
	if err != nil {
		return err
	}
	d, err := transport.NewDialer(transport.DialerConfig{
		TLSConfig:      tc,
		Policy:         p.cfg.TLSPolicy(),
		Logger:         p.logger,
		ProtocolLogger: p.plog,
	})
	if err != nil {
		return err
	}

	s, err := d.Dial(ctx, p.cfg.TLS.Address)
	if err != nil {
		return err
	}
	defer transport.Hangup(s)

	if _, err := s.Send([]byte(text)); err != nil {
		return err
	}

	reply := make([]byte, len(text)+1)
	got := 0
	for got < len(text) {
		n, err := s.Receive(reply[got:])
		if err != nil {
			return fmt.Errorf("receive echo: %w", err)
		}
		got += n
	}
	fmt.Fprintf(p.out, "%s\n", reply[:got])
	return nil
}
