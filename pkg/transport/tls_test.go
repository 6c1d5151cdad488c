package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"slices"
	"testing"
	"time"
)

// generateTestCertificate creates a self-signed certificate for testing.
func generateTestCertificate(t *testing.T) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "test.local",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"test.local"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}, cert
}

func TestNewServerTLSConfig(t *testing.T) {
	cert, _ := generateTestCertificate(t)

	tlsConfig, err := NewServerTLSConfig(&TLSConfig{Certificate: cert})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}

	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsConfig.MinVersion)
	}
	if !slices.Equal(tlsConfig.NextProtos, []string{ALPNProtocol}) {
		t.Errorf("NextProtos = %v, want [%s]", tlsConfig.NextProtos, ALPNProtocol)
	}
	if !tlsConfig.SessionTicketsDisabled {
		t.Error("session tickets must be disabled")
	}
	if tlsConfig.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", tlsConfig.ClientAuth)
	}
}

func TestNewServerTLSConfigClientAuth(t *testing.T) {
	cert, caCert := generateTestCertificate(t)
	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	cfg, err := NewServerTLSConfig(&TLSConfig{Certificate: cert, ClientCAs: pool})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if cfg.ClientAuth != tls.VerifyClientCertIfGiven {
		t.Errorf("ClientAuth = %v, want VerifyClientCertIfGiven", cfg.ClientAuth)
	}

	cfg, err = NewServerTLSConfig(&TLSConfig{Certificate: cert, ClientCAs: pool, RequireClientCert: true})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if cfg.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", cfg.ClientAuth)
	}
}

func TestNewServerTLSConfigNoCert(t *testing.T) {
	if _, err := NewServerTLSConfig(&TLSConfig{}); err == nil {
		t.Error("expected error for missing certificate")
	}
	if _, err := NewServerTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	_, caCert := generateTestCertificate(t)
	caPool := x509.NewCertPool()
	caPool.AddCert(caCert)

	tlsConfig, err := NewClientTLSConfig(&TLSConfig{
		RootCAs:    caPool,
		ServerName: "test.local",
	})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}

	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", tlsConfig.MinVersion)
	}
	if tlsConfig.RootCAs != caPool {
		t.Error("RootCAs not set")
	}
	if tlsConfig.ServerName != "test.local" {
		t.Errorf("ServerName = %q", tlsConfig.ServerName)
	}
	if len(tlsConfig.Certificates) != 0 {
		t.Error("client certificate must be optional")
	}
	if tlsConfig.InsecureSkipVerify {
		t.Error("InsecureSkipVerify must default to false")
	}
}

func TestNewClientTLSConfigNil(t *testing.T) {
	if _, err := NewClientTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestVerifyConnection(t *testing.T) {
	tests := []struct {
		name    string
		state   tls.ConnectionState
		wantErr bool
	}{
		{"tls13", tls.ConnectionState{Version: tls.VersionTLS13, NegotiatedProtocol: ALPNProtocol}, false},
		{"tls12", tls.ConnectionState{Version: tls.VersionTLS12, NegotiatedProtocol: ALPNProtocol}, false},
		{"tls11", tls.ConnectionState{Version: tls.VersionTLS11, NegotiatedProtocol: ALPNProtocol}, true},
		{"no alpn", tls.ConnectionState{Version: tls.VersionTLS13}, true},
		{"wrong alpn", tls.ConnectionState{Version: tls.VersionTLS13, NegotiatedProtocol: "h2"}, true},
		{"future major", tls.ConnectionState{Version: tls.VersionTLS13, NegotiatedProtocol: "cfnet/2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyConnection(tt.state)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifyConnection() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestALPNProtocol(t *testing.T) {
	if ALPNProtocol != "cfnet/1" {
		t.Errorf("ALPNProtocol = %q, want %q", ALPNProtocol, "cfnet/1")
	}
}
